package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
)

// ReservationResponse is a table hold.
type ReservationResponse struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	PartySize   int       `json:"party_size"`
	ReservedFor time.Time `json:"reserved_for"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reservation maps a reservation.
func Reservation(r *entity.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		PartySize:   r.PartySize,
		ReservedFor: r.ReservedFor,
		ExpiresAt:   r.ExpiresAt,
		Status:      string(r.Status),
		Note:        r.Note,
		CreatedAt:   r.CreatedAt,
	}
}

// Reservations maps a slice of reservations.
func Reservations(in []entity.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(in))
	for i := range in {
		out = append(out, Reservation(&in[i]))
	}
	return out
}
