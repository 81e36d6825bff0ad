package inventory

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/inventory"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// Handler exposes the menu and stock endpoints.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an inventory Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance. Reads are public.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	e.GET("/inventory", h.list)
	e.GET("/inventory/:id", h.get)

	staff := e.Group("/inventory", guard.Authenticate, guard.RequireStaff())
	staff.POST("", h.create)
	staff.POST("/:id/restock", h.restock)
	staff.POST("/:id/archive", h.archive)
	staff.GET("/:id/movements", h.movements)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("include_archived") == "true")
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inventories(items)).WithMeta("count", len(items)).Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	item, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inventory(item)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	var payload struct {
		SKU          string `json:"sku"`
		Name         string `json:"name"`
		Unit         string `json:"unit"`
		Price        string `json:"price"`
		InitialStock int    `json:"initial_stock"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return b.WithError(errorbank.BadRequest("price must be a decimal string", errorbank.WithCause(err))).Build()
	}
	item, err := h.svc.Create(c.Request().Context(), service.CreateInput{
		SKU:          payload.SKU,
		Name:         payload.Name,
		Unit:         payload.Unit,
		Price:        price,
		InitialStock: payload.InitialStock,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Inventory(item)).Build()
}

func (h *Handler) restock(c echo.Context) error {
	b := response.New(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	item, err := h.svc.Restock(c.Request().Context(), id, payload.Quantity)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Inventory(item)).Build()
}

func (h *Handler) archive(c echo.Context) error {
	b := response.New(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	if err := h.svc.Archive(c.Request().Context(), id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"id": id, "archived": true}).Build()
}

func (h *Handler) movements(c echo.Context) error {
	b := response.New(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	limit, err := request.QueryInt(c, "limit", 50)
	if err != nil {
		return b.WithError(err).Build()
	}
	rows, err := h.svc.Movements(c.Request().Context(), id, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Movements(rows)).Build()
}
