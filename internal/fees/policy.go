// Package fees computes the platform fee, gateway fee and payable split for a
// gig. All rates live in one versioned Policy so historical transactions stay
// explainable if rates change.
package fees

import "time"

// Rates are expressed in basis points against integer currency units.
// Rounding is always ceiling, consistently in the platform's favor.
type Policy struct {
	Version int

	// HUSTLE commission: new workers pay HustleFeeBps, workers past
	// HustleTierJobs completed jobs pay HustleTierFeeBps.
	HustleFeeBps     int64
	HustleTierFeeBps int64
	HustleTierJobs   int

	// MARKET/RENT commission on price + deposit. SELL carries no commission.
	RentFeeBps int64

	// Gateway surcharge on everything the payer is charged.
	GatewayFeeBps int64

	// ReviewWindow is how long the poster has after delivery before the
	// auto-release sweep may settle the gig.
	ReviewWindow time.Duration

	// ReleaseSLA is the informational release deadline stamped on the
	// escrow record at funding time.
	ReleaseSLA time.Duration
}

// DefaultPolicy is policy version 1: 10% / 7.5% tiered HUSTLE commission with
// the tier boundary strictly above 10 jobs, 3% rental commission, 2% gateway
// fee, 24h review window, 7 day release SLA.
func DefaultPolicy() Policy {
	return Policy{
		Version:          1,
		HustleFeeBps:     1000,
		HustleTierFeeBps: 750,
		HustleTierJobs:   10,
		RentFeeBps:       300,
		GatewayFeeBps:    200,
		ReviewWindow:     24 * time.Hour,
		ReleaseSLA:       7 * 24 * time.Hour,
	}
}

// ReleaseFeeBps returns the HUSTLE commission rate for a worker with the given
// completed-job count. A negative count means the tier lookup failed; the
// fail-safe is the higher new-user rate so the platform fee is never
// under-charged.
func (p Policy) ReleaseFeeBps(jobsCompleted int) int64 {
	if jobsCompleted > p.HustleTierJobs {
		return p.HustleTierFeeBps
	}
	return p.HustleFeeBps
}

// ceilBps returns ceil(amount * bps / 10000).
func ceilBps(amount, bps int64) int64 {
	return (amount*bps + 9999) / 10000
}
