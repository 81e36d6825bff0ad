package reservation

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/reservation"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

// Handler exposes reservation endpoints.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a reservation Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	g := e.Group("/reservations", guard.Authenticate)
	g.POST("", h.create)
	g.GET("/mine", h.listMine)
	g.GET("/:id", h.get)
	g.POST("/:id/dissolve", h.dissolve)

	staff := guard.RequireStaff()
	g.GET("", h.listActive, staff)
	g.POST("/:id/arrive", h.arrive, staff)
	g.POST("/sweep", h.sweep, staff)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)

	var payload struct {
		PartySize   int       `json:"party_size"`
		ReservedFor time.Time `json:"reserved_for"`
		Note        string    `json:"note"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	res, err := h.svc.Create(c.Request().Context(), p.UserID, service.CreateInput{
		PartySize:   payload.PartySize,
		ReservedFor: payload.ReservedFor,
		Note:        payload.Note,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.Reservation(res)).Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	res, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Reservation(res)).Build()
}

func (h *Handler) listMine(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	rows, err := h.svc.ListMine(c.Request().Context(), p.UserID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Reservations(rows)).Build()
}

func (h *Handler) listActive(c echo.Context) error {
	b := response.New(c)
	rows, err := h.svc.ListActive(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Reservations(rows)).WithMeta("count", len(rows)).Build()
}

func (h *Handler) dissolve(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	res, err := h.svc.Dissolve(c.Request().Context(), p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Reservation(res)).Build()
}

func (h *Handler) arrive(c echo.Context) error {
	b := response.New(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	res, err := h.svc.MarkArrived(c.Request().Context(), id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Reservation(res)).Build()
}

func (h *Handler) sweep(c echo.Context) error {
	b := response.New(c)
	n, err := h.svc.DissolveExpired(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int{"dissolved": n}).Build()
}
