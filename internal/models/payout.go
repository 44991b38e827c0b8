package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout queue entry statuses.
const (
	PayoutStatusPending   = "PENDING"
	PayoutStatusCompleted = "COMPLETED"
)

// PayoutQueueEntry is a "pay this user this amount" record consumed by the
// external bank-transfer process.
type PayoutQueueEntry struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	GigID       *uuid.UUID `json:"gig_id,omitempty"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
