package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a row of the users table.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Password string    `json:"password,omitempty"`
	Rating   int       `json:"rating"`
	IsAdmin  bool      `json:"is_admin"`

	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// UserStats summarizes a user's finished matches.
type UserStats struct {
	UserID uuid.UUID `json:"user_id"`
	Ended  int       `json:"ended"`
	Wins   int       `json:"wins"`
	Losses int       `json:"losses"`
	Draws  int       `json:"draws"`
}
