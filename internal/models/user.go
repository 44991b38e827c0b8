package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	PasswordHash  string    `json:"-"`
	WalletBalance int64     `json:"wallet_balance"`
	Rating        float64   `json:"rating"`
	RatingCount   int       `json:"rating_count"`
	JobsCompleted int       `json:"jobs_completed"`
	TotalEarned   int64     `json:"total_earned"`
	IsAdmin       bool      `json:"is_admin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
