package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	service "github.com/Additional-Code/tableside/internal/service/account"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

// Handler exposes authentication and account administration.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an account Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	e.POST("/auth/register", h.register)
	e.POST("/auth/login", h.login)
	e.GET("/me", h.me, guard.Authenticate)

	admin := e.Group("/admin/users", guard.Authenticate, guard.RequireRole(entity.RoleAdmin))
	admin.GET("", h.list)
	admin.POST("", h.createStaff)
	admin.PUT("/:id/role", h.setRole)
	admin.POST("/:id/archive", h.archive)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r registerRequest) input() service.RegisterInput {
	return service.RegisterInput{Name: r.Name, Email: r.Email, Phone: r.Phone, Password: r.Password}
}

func (h *Handler) register(c echo.Context) error {
	b := response.New(c)
	var payload registerRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	u, err := h.svc.Register(c.Request().Context(), payload.input())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.User(u)).Build()
}

func (h *Handler) login(c echo.Context) error {
	b := response.New(c)
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	session, err := h.svc.Login(c.Request().Context(), payload.Email, payload.Password)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.SessionResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        dto.User(&session.User),
	}).Build()
}

func (h *Handler) me(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	u, err := h.svc.Me(c.Request().Context(), p.UserID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.User(u)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)
	users, err := h.svc.ListUsers(c.Request().Context(), entity.Role(c.QueryParam("role")))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.Users(users)).WithMeta("count", len(users)).Build()
}

func (h *Handler) createStaff(c echo.Context) error {
	b := response.New(c)
	var payload registerRequest
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	u, err := h.svc.CreateStaff(c.Request().Context(), payload.input(), entity.Role(payload.Role))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.User(u)).Build()
}

func (h *Handler) setRole(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		Role string `json:"role"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	if err := h.svc.SetRole(c.Request().Context(), p, id, entity.Role(payload.Role)); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"id": id, "role": payload.Role}).Build()
}

func (h *Handler) archive(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	id, err := request.ParamID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	if err := h.svc.Archive(c.Request().Context(), p, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]any{"id": id, "archived": true}).Build()
}
