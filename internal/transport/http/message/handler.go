package message

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/presentation/http/request"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	"github.com/Additional-Code/tableside/internal/realtime"
	service "github.com/Additional-Code/tableside/internal/service/message"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

// Handler exposes notifications, chat and the websocket relay.
type Handler struct {
	svc      *service.Service
	hub      *realtime.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a message Handler.
func NewHandler(svc *service.Service, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is served to a separately hosted frontend; tokens, not
			// origins, authenticate the socket.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, guard *middleware.Guard, h *Handler) {
	e.GET("/ws", h.socket, guard.Authenticate)

	n := e.Group("/notifications", guard.Authenticate)
	n.GET("", h.notifications)
	n.POST("/read", h.markRead)

	chat := e.Group("/chat", guard.Authenticate)
	chat.GET("/messages", h.conversation)
	chat.POST("/messages", h.send)
}

func (h *Handler) socket(c echo.Context) error {
	p, _ := middleware.Principal(c)
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	h.hub.Serve(conn, p.UserID)
	return nil
}

func (h *Handler) notifications(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	limit, err := request.QueryInt(c, "limit", 50)
	if err != nil {
		return b.WithError(err).Build()
	}
	out, err := h.svc.Notifications(c.Request().Context(), p.UserID, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	unread := 0
	for _, n := range out {
		if !n.IsRead {
			unread++
		}
	}
	return b.WithData(out).WithMeta("unread", unread).Build()
}

func (h *Handler) markRead(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	var payload struct {
		IDs []int64 `json:"ids"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	n, err := h.svc.MarkRead(c.Request().Context(), p.UserID, payload.IDs)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]int64{"updated": n}).Build()
}

func (h *Handler) send(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	var payload struct {
		RecipientID int64  `json:"recipient_id"`
		Body        string `json:"body"`
	}
	if err := request.Bind(c, &payload); err != nil {
		return b.WithError(err).Build()
	}
	msg, err := h.svc.SendChat(c.Request().Context(), p.UserID, payload.RecipientID, payload.Body)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(msg).Build()
}

func (h *Handler) conversation(c echo.Context) error {
	b := response.New(c)
	p, _ := middleware.Principal(c)
	with, err := request.QueryInt64(c, "with")
	if err != nil {
		return b.WithError(err).Build()
	}
	since, err := request.QueryInt64(c, "since_id")
	if err != nil {
		return b.WithError(err).Build()
	}
	limit, err := request.QueryInt(c, "limit", 100)
	if err != nil {
		return b.WithError(err).Build()
	}
	out, err := h.svc.Conversation(c.Request().Context(), p.UserID, with, since, limit)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(out).Build()
}
