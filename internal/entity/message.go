package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Notification is a message addressed to a single user.
type Notification struct {
	bun.BaseModel `bun:"table:notifications" json:"-"`

	ID        int64     `bun:",pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	Message   string    `bun:"message,notnull" json:"message"`
	Link      string    `bun:"link" json:"link,omitempty"`
	IsRead    bool      `bun:"is_read,notnull" json:"is_read"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}

// ChatMessage is a direct message between a customer and staff.
type ChatMessage struct {
	bun.BaseModel `bun:"table:chat_messages" json:"-"`

	ID          int64     `bun:",pk,autoincrement" json:"id"`
	SenderID    int64     `bun:"sender_id,notnull" json:"sender_id"`
	RecipientID int64     `bun:"recipient_id,notnull" json:"recipient_id"`
	Body        string    `bun:"body,notnull" json:"body"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
