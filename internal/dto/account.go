package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
)

// UserResponse is an account without its credentials.
type UserResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse is returned on login.
type SessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// User maps an account.
func User(u *entity.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      string(u.Role),
		Archived:  u.Archived,
		CreatedAt: u.CreatedAt,
	}
}

// Users maps a slice of accounts.
func Users(in []entity.User) []UserResponse {
	out := make([]UserResponse, 0, len(in))
	for i := range in {
		out = append(out, User(&in[i]))
	}
	return out
}
