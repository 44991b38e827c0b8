package fees

import (
	"errors"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

var (
	// ErrInvalidPrice is returned for a price below one currency unit.
	ErrInvalidPrice = errors.New("price must be at least 1")
	// ErrInvalidDeposit is returned for a negative deposit, or a deposit on
	// a non-rental listing.
	ErrInvalidDeposit = errors.New("invalid security deposit")
	// ErrUnknownListing is returned for a listing/market type combination
	// the policy does not cover.
	ErrUnknownListing = errors.New("unknown listing type")
)

// Breakdown is the funding-time fee split for an order.
//
// The platform fee is a surcharge: it is added on top of the price when the
// payer is charged, never deducted from what the worker is quoted. AmountHeld
// is the money actually taken into custody (principal + deposit).
type Breakdown struct {
	PlatformFee  int64 `json:"platform_fee"`
	GatewayFee   int64 `json:"gateway_fee"`
	TotalPayable int64 `json:"total_payable"`
	NetWorkerPay int64 `json:"net_worker_pay"`
	AmountHeld   int64 `json:"amount_held"`
}

// Compute returns the fee breakdown for funding a gig. workerJobsCompleted is
// the assigned worker's completed-job count at order time; pass a negative
// value if the lookup failed and the new-user rate applies.
func (p Policy) Compute(listingType string, marketType string, price, deposit int64, workerJobsCompleted int) (Breakdown, error) {
	if price < 1 {
		return Breakdown{}, ErrInvalidPrice
	}
	if deposit < 0 {
		return Breakdown{}, ErrInvalidDeposit
	}

	var platformFee int64
	switch {
	case listingType == models.ListingHustle:
		if deposit != 0 {
			return Breakdown{}, ErrInvalidDeposit
		}
		platformFee = ceilBps(price, p.ReleaseFeeBps(workerJobsCompleted))
	case listingType == models.ListingMarket && marketType == models.MarketSell:
		if deposit != 0 {
			return Breakdown{}, ErrInvalidDeposit
		}
		platformFee = 0
	case listingType == models.ListingMarket && marketType == models.MarketRent:
		platformFee = ceilBps(price+deposit, p.RentFeeBps)
	default:
		return Breakdown{}, ErrUnknownListing
	}

	gatewayFee := ceilBps(price+deposit+platformFee, p.GatewayFeeBps)
	return Breakdown{
		PlatformFee:  platformFee,
		GatewayFee:   gatewayFee,
		TotalPayable: price + deposit + platformFee + gatewayFee,
		NetWorkerPay: price,
		AmountHeld:   price + deposit,
	}, nil
}

// ReleaseSplit is the settlement split computed when escrow leaves HELD.
type ReleaseSplit struct {
	Payout      int64
	Refund      int64
	PlatformFee int64
}

// CompletionSplit computes the split for a completion release (manual approve,
// handshake, auto-release). For HUSTLE gigs the commission rate is looked up
// at release time, so a worker who crossed the tier boundary in the interim
// gets the lower rate on the completing job.
func (p Policy) CompletionSplit(listingType string, amountHeld int64, workerJobsCompleted int) ReleaseSplit {
	if listingType == models.ListingHustle {
		fee := ceilBps(amountHeld, p.ReleaseFeeBps(workerJobsCompleted))
		return ReleaseSplit{Payout: amountHeld - fee, PlatformFee: fee}
	}
	return ReleaseSplit{Payout: amountHeld}
}

// RentalSplit computes the confirm-return split: the renter gets the deposit
// back minus the deduction, the owner gets everything else held.
func RentalSplit(amountHeld, deposit, deduction int64) ReleaseSplit {
	refund := deposit - deduction
	return ReleaseSplit{Payout: amountHeld - refund, Refund: refund}
}

// CancellationSplit computes the pre-work cancellation split. The cancellation
// fee is the platform fee already computed at funding time; it is retained and
// the rest of the held amount is refunded to the payer.
func CancellationSplit(amountHeld, fundingPlatformFee int64) ReleaseSplit {
	fee := fundingPlatformFee
	if fee > amountHeld {
		fee = amountHeld
	}
	return ReleaseSplit{Refund: amountHeld - fee, PlatformFee: fee}
}
