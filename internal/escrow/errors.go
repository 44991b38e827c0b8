package escrow

import "errors"

// Validation errors: rejected before any write, user-correctable.
var (
	ErrInvalidDeduction = errors.New("deduction must be between 0 and the security deposit")
	ErrReasonTooShort   = errors.New("dispute reason must be at least 50 characters")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrNotRental        = errors.New("gig is not a rental listing")
)

// Authorization errors: wrong actor for the gig role, rejected before any write.
var (
	ErrNotPoster         = errors.New("only the gig poster may perform this action")
	ErrNotWorker         = errors.New("only the assigned worker may perform this action")
	ErrNotPayer          = errors.New("only the paying party may fund this gig")
	ErrHandshakeMismatch = errors.New("handshake code does not match")
)

// State-conflict errors: a guard failed. Reported as "already processed",
// never treated as fatal.
var (
	ErrAlreadySettled = errors.New("escrow already settled")
	ErrWrongState     = errors.New("gig is not in a state that allows this action")
	ErrAlreadyFunded  = errors.New("gig already has a funded escrow")
)

// Upstream gateway errors: the caller retries verification with backoff.
var (
	ErrPaymentNotCaptured = errors.New("payment not captured by gateway")
)

// Integrity errors: an expected row is missing. These indicate a
// funding/verification ordering bug and must surface as 500s, never be
// swallowed.
var (
	ErrOrderMissing  = errors.New("no order record for gateway order id")
	ErrEscrowMissing = errors.New("escrow record missing for funded gig")
)
