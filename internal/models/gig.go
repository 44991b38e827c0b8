package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing type and market subtype enums.
const (
	ListingHustle = "HUSTLE"
	ListingMarket = "MARKET"

	MarketSell = "SELL"
	MarketRent = "RENT"
)

// Gig lifecycle statuses.
const (
	GigStatusOpen      = "open"
	GigStatusAssigned  = "assigned"
	GigStatusDelivered = "delivered"
	GigStatusCompleted = "completed"
	GigStatusDisputed  = "disputed"
	GigStatusCancelled = "cancelled"
)

// Payment statuses tracked on the gig, kept consistent with the escrow record.
const (
	PaymentStatusPending     = "PENDING"
	PaymentStatusHeld        = "HELD"
	PaymentStatusReleased    = "RELEASED"
	PaymentStatusRefunded    = "REFUNDED"
	PaymentStatusDisputeHeld = "DISPUTE_HELD"
)

type Gig struct {
	ID               uuid.UUID  `json:"id"`
	PosterID         uuid.UUID  `json:"poster_id"`
	AssignedWorkerID *uuid.UUID `json:"assigned_worker_id,omitempty"`
	ListingType      string     `json:"listing_type"`
	MarketType       *string    `json:"market_type,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Price            int64      `json:"price"`
	SecurityDeposit  int64      `json:"security_deposit"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	DisputeReason    *string    `json:"dispute_reason,omitempty"`
	DeliveryLink     *string    `json:"delivery_link,omitempty"`
	AutoReleaseAt    *time.Time `json:"auto_release_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsRental reports whether the gig is a MARKET/RENT listing.
func (g *Gig) IsRental() bool {
	return g.ListingType == ListingMarket && g.MarketType != nil && *g.MarketType == MarketRent
}
