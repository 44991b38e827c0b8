package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow record statuses. HELD is the only non-terminal status; every record
// leaves HELD exactly once.
const (
	EscrowHeld        = "HELD"
	EscrowReleased    = "RELEASED"
	EscrowRefunded    = "REFUNDED"
	EscrowCancelled   = "CANCELLED"
	EscrowDisputeHeld = "DISPUTE_HELD"
)

// Release conditions.
const (
	ReleaseOnCompletion   = "GIG_COMPLETION"
	ReleaseOnRentalReturn = "RENTAL_RETURN"
)

// EscrowRecord is the authoritative custody record for a funded gig.
// AmountHeld (principal + deposit) is immutable once written; only Status and
// ReleasedAt change afterwards, via status-guarded updates.
type EscrowRecord struct {
	ID               uuid.UUID  `json:"id"`
	GigID            uuid.UUID  `json:"gig_id"`
	PosterID         uuid.UUID  `json:"poster_id"`
	WorkerID         uuid.UUID  `json:"worker_id"`
	OriginalAmount   int64      `json:"original_amount"`
	SecurityDeposit  int64      `json:"security_deposit"`
	PlatformFee      int64      `json:"platform_fee"`
	GatewayFee       int64      `json:"gateway_fee"`
	AmountHeld       int64      `json:"amount_held"`
	NetAmount        int64      `json:"net_amount"`
	Status           string     `json:"status"`
	ReleaseCondition string     `json:"release_condition"`
	ReleaseDate      time.Time  `json:"release_date"`
	HandshakeHash    *string    `json:"-"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
