package inventory

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

// Module wires HTTP inventory handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, guard *middleware.Guard, h *Handler) {
		Register(e, guard, h)
	}),
)
