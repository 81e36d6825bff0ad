package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// ReservationStatus tracks a table hold.
type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "Active"
	ReservationArrived  ReservationStatus = "Arrived"
	ReservationDissolve ReservationStatus = "Dissolve"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationArrived || s == ReservationDissolve
}

// Reservation is a customer's table booking.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID          int64             `bun:",pk,autoincrement"`
	UserID      int64             `bun:"user_id,notnull"`
	PartySize   int               `bun:"party_size,notnull"`
	ReservedFor time.Time         `bun:"reserved_for,notnull"`
	ExpiresAt   time.Time         `bun:"expires_at,notnull"`
	Status      ReservationStatus `bun:"status,notnull"`
	Note        string            `bun:"note"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero"`
}

// Expired reports whether an active hold has run past its deadline.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && !now.Before(r.ExpiresAt)
}
