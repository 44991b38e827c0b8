package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal request statuses.
const (
	WithdrawalPending  = "PENDING"
	WithdrawalApproved = "APPROVED"
	WithdrawalRejected = "REJECTED"
)

// WithdrawalRequest is a user's request to move wallet balance off-platform.
// The balance is debited when the request is created and credited back on
// rejection.
type WithdrawalRequest struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Amount    int64      `json:"amount"`
	UPIID     string     `json:"upi_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}
