package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	repo "github.com/Additional-Code/tableside/internal/repository/order"
	service "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/tableside/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	g := e.Group("/orders", guard.Authenticate)
	g.POST("", h.checkout)
	g.GET("/mine", h.listMine)
	g.GET("/:id", h.getByID)
	g.GET("/:id/payments", h.payments)
	g.POST("/:id/payments", h.submitProof)
	g.POST("/:id/cancel", h.cancel)

	staff := guard.RequireStaff()
	g.GET("", h.list, staff)
	g.PUT("/:id/status", h.updateStatus, staff)
}

type checkoutRequest struct {
	Items []struct {
		InventoryItemID int64 `json:"inventory_item_id"`
		Quantity        int   `json:"quantity"`
	} `json:"items"`
}

func (h *Handler) checkout(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	var payload checkoutRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	lines := make([]service.Line, 0, len(payload.Items))
	for _, it := range payload.Items {
		lines = append(lines, service.Line{InventoryItemID: it.InventoryItemID, Quantity: it.Quantity})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.checkout")
	defer span.End()

	order, err := h.svc.Checkout(ctx, p.UserID, lines)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Order(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Order(order)).Build()
}

func (h *Handler) listMine(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	limit, err := request.QueryInt(c, "limit", 20)
	if err != nil {
		return b.WithError(err).Build()
	}
	offset, err := request.QueryInt(c, "offset", 0)
	if err != nil {
		return b.WithError(err).Build()
	}
	orders, err := h.svc.ListMine(c.Request().Context(), p.UserID, limit, offset)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Orders(orders)).WithMeta("count", len(orders)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	limit, err := request.QueryInt(c, "limit", 50)
	if err != nil {
		return b.WithError(err).Build()
	}
	offset, err := request.QueryInt(c, "offset", 0)
	if err != nil {
		return b.WithError(err).Build()
	}
	userID, err := request.QueryInt64(c, "user_id")
	if err != nil {
		return b.WithError(err).Build()
	}
	status := entity.PaymentStatus(c.QueryParam("payment_status"))
	switch status {
	case "", entity.PaymentUnpaid, entity.PaymentPendingValidation, entity.PaymentPaid:
	default:
		return b.WithError(errorbank.BadRequest("unknown payment_status")).Build()
	}

	orders, err := h.svc.List(c.Request().Context(), repo.Filter{
		UserID:        userID,
		PaymentStatus: status,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Orders(orders)).WithMeta("count", len(orders)).Build()
}

func (h *Handler) payments(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	txs, err := h.svc.Payments(c.Request().Context(), p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Transactions(txs)).Build()
}

type proofRequest struct {
	Method        string `json:"method"`
	Amount        string `json:"amount"`
	ReferenceCode string `json:"reference_code"`
	ProofImage    string `json:"proof_image"`
}

func (h *Handler) submitProof(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload proofRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return b.WithError(errorbank.BadRequest("amount must be a decimal string", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.submitProof", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	txn, err := h.svc.SubmitProof(ctx, service.ProofInput{
		OrderID:       id,
		UserID:        p.UserID,
		Method:        entity.PaymentMethod(payload.Method),
		Amount:        amount,
		ReferenceCode: payload.ReferenceCode,
		ProofImage:    payload.ProofImage,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Transaction(txn)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.svc.Cancel(c.Request().Context(), p.UserID, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Order(order)).Build()
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	order, err := h.svc.UpdateStatus(c.Request().Context(), id, entity.OrderStatus(payload.Status))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Order(order)).Build()
}
