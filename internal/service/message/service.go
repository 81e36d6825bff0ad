package message

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/realtime"
	repo "github.com/Additional-Code/tableside/internal/repository/message"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/message")

const (
	maxBodyLength    = 2000
	defaultPageLimit = 50
)

// Notifier delivers a notification to a user. Other services depend on this
// rather than on the whole message service.
type Notifier interface {
	Notify(ctx context.Context, userID int64, message, link string) (*entity.Notification, error)
}

// Store is the persistence the service needs.
type Store interface {
	CreateNotification(ctx context.Context, n *entity.Notification) error
	Notifications(ctx context.Context, userID int64, limit int) ([]entity.Notification, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
	CreateChatMessage(ctx context.Context, m *entity.ChatMessage) error
	Conversation(ctx context.Context, a, b, sinceID int64, limit int) ([]entity.ChatMessage, error)
}

// Relay fans events out to connected clients.
type Relay interface {
	Publish(userID int64, ev realtime.Event) int
}

// Service handles notifications and direct chat.
type Service struct {
	store  Store
	relay  Relay
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Hub        *realtime.Hub
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Hub, p.Logger)
}

// New builds a Service from its collaborators.
func New(store Store, relay Relay, logger *zap.Logger) *Service {
	return &Service{store: store, relay: relay, logger: logger}
}

// Notify persists a notification and pushes it to the user's live connections.
func (s *Service) Notify(ctx context.Context, userID int64, message, link string) (*entity.Notification, error) {
	message = strings.TrimSpace(message)
	if userID <= 0 || message == "" {
		return nil, errorbank.BadRequest("notification requires a user and a message")
	}
	ctx, span := serviceTracer.Start(ctx, "MessageService.Notify", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	n := &entity.Notification{UserID: userID, Message: message, Link: link}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, errorbank.Internal("failed to store notification", errorbank.WithCause(err))
	}
	s.relay.Publish(userID, realtime.Event{Type: realtime.EventNotification, Data: n})
	return n, nil
}

// Notifications lists the caller's notifications.
func (s *Service) Notifications(ctx context.Context, userID int64, limit int) ([]entity.Notification, error) {
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}
	out, err := s.store.Notifications(ctx, userID, limit)
	if err != nil {
		return nil, errorbank.Internal("failed to load notifications", errorbank.WithCause(err))
	}
	return out, nil
}

// MarkRead marks notifications read; an empty id list marks all of them.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	n, err := s.store.MarkRead(ctx, userID, ids)
	if err != nil {
		return 0, errorbank.Internal("failed to update notifications", errorbank.WithCause(err))
	}
	return n, nil
}

// SendChat persists a message and then relays it to both participants.
func (s *Service) SendChat(ctx context.Context, senderID, recipientID int64, body string) (*entity.ChatMessage, error) {
	body = strings.TrimSpace(body)
	switch {
	case recipientID <= 0:
		return nil, errorbank.BadRequest("recipient_id is required")
	case recipientID == senderID:
		return nil, errorbank.BadRequest("cannot message yourself")
	case body == "":
		return nil, errorbank.BadRequest("body is required")
	case len(body) > maxBodyLength:
		return nil, errorbank.BadRequest("body is too long", errorbank.WithDetail("max", maxBodyLength))
	}

	ctx, span := serviceTracer.Start(ctx, "MessageService.SendChat")
	defer span.End()

	msg := &entity.ChatMessage{SenderID: senderID, RecipientID: recipientID, Body: body}
	if err := s.store.CreateChatMessage(ctx, msg); err != nil {
		return nil, errorbank.Internal("failed to store message", errorbank.WithCause(err))
	}

	ev := realtime.Event{Type: realtime.EventChatMessage, Data: msg}
	delivered := s.relay.Publish(recipientID, ev)
	s.relay.Publish(senderID, ev)
	s.logger.Debug("chat message relayed", zap.Int64("message_id", msg.ID), zap.Int("delivered", delivered))
	return msg, nil
}

// Conversation returns messages between two users newer than sinceID.
func (s *Service) Conversation(ctx context.Context, userID, otherID, sinceID int64, limit int) ([]entity.ChatMessage, error) {
	if otherID <= 0 {
		return nil, errorbank.BadRequest("with is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	out, err := s.store.Conversation(ctx, userID, otherID, sinceID, limit)
	if err != nil {
		return nil, errorbank.Internal("failed to load conversation", errorbank.WithCause(err))
	}
	return out, nil
}
