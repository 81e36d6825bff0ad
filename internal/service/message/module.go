package message

import "go.uber.org/fx"

// Module provides the message service to Fx.
var Module = fx.Provide(
	NewService,
	func(s *Service) Notifier { return s },
)
