package reservation

import "go.uber.org/fx"

// Module provides the reservation repository to Fx.
var Module = fx.Provide(NewRepository)
