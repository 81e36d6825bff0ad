package reservation

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/worker"
)

// Module provides the reservation service and registers the dissolve sweeper
// with the worker engine.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(fx.Annotate(
		func(s *Service) worker.Job { return s.SweepJob() },
		fx.ResultTags(`group:"worker.jobs"`),
	)),
)
