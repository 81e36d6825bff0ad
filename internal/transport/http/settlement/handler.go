package settlement

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/settlement"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/settlement")

// HeaderIdempotencyKey optionally pins a settlement request to an order.
const HeaderIdempotencyKey = "Idempotency-Key"

// Handler exposes payment validation endpoints to staff.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a settlement Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	g := e.Group("/orders", guard.Authenticate, guard.RequireStaff())
	g.POST("/:id/settle", h.settle)
	g.POST("/:id/reject", h.reject)
}

type settleRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

func (h *Handler) settle(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload settleRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.settle", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := h.svc.Settle(ctx, service.Input{
		OrderID:        id,
		UserID:         payload.UserID,
		WorkerID:       p.UserID,
		Message:        payload.Message,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return b.WithStatus(status).WithHeader(HeaderIdempotencyKey, res.Settlement.IdempotencyKey).WithData(dto.SettlementResponse{
		OrderID:        res.Settlement.OrderID,
		IdempotencyKey: res.Settlement.IdempotencyKey,
		WorkerID:       res.Settlement.WorkerID,
		Message:        res.Settlement.Message,
		SettledAt:      res.Settlement.SettledAt,
		Replayed:       res.Replayed,
		Order:          dto.Order(&res.Order),
	}).Build()
}

func (h *Handler) reject(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.svc.Reject(c.Request().Context(), id, p.UserID, payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Order(order)).Build()
}
