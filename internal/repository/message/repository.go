package message

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
)

// Repository persists notifications and chat messages.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// CreateNotification inserts a notification.
func (r *Repository) CreateNotification(ctx context.Context, n *entity.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.writer.NewInsert().Model(n).Exec(ctx)
	return err
}

// Notifications lists a user's notifications, unread first then newest.
func (r *Repository) Notifications(ctx context.Context, userID int64, limit int) ([]entity.Notification, error) {
	var out []entity.Notification
	err := r.reader.NewSelect().Model(&out).
		Where("user_id = ?", userID).
		OrderExpr("is_read ASC, created_at DESC").
		Limit(limit).
		Scan(ctx)
	return out, err
}

// MarkRead flags the given notifications of a user as read and returns how many changed.
func (r *Repository) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	q := r.writer.NewUpdate().Model((*entity.Notification)(nil)).
		Set("is_read = ?", true).
		Where("user_id = ?", userID).
		Where("is_read = ?", false)
	if len(ids) > 0 {
		q = q.Where("id IN (?)", bun.In(ids))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateChatMessage inserts a chat message.
func (r *Repository) CreateChatMessage(ctx context.Context, m *entity.ChatMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.writer.NewInsert().Model(m).Exec(ctx)
	return err
}

// Conversation returns messages exchanged between two users after sinceID, oldest first.
func (r *Repository) Conversation(ctx context.Context, a, b, sinceID int64, limit int) ([]entity.ChatMessage, error) {
	var out []entity.ChatMessage
	err := r.reader.NewSelect().Model(&out).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender_id = ?", a).Where("recipient_id = ?", b)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.Where("sender_id = ?", b).Where("recipient_id = ?", a)
				})
		}).
		Where("id > ?", sinceID).
		OrderExpr("id ASC").
		Limit(limit).
		Scan(ctx)
	return out, err
}
