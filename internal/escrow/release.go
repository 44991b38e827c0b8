package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/fees"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payout"
)

// Release is the poster's manual approval: settle the held amount to the
// worker at the release-time commission rate.
func (s *Service) Release(ctx context.Context, gigID, actorID uuid.UUID, rating *int) error {
	gig, esc, err := s.loadFunded(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.PosterID != actorID {
		return ErrNotPoster
	}
	if gig.Status != models.GigStatusDelivered && gig.DeliveryLink == nil {
		return ErrWrongState
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return ErrInvalidRating
	}
	return s.settleCompletion(ctx, gig, esc, models.TxPayoutCredit, rating)
}

// VerifyHandshake releases on the in-person exchange: the assigned worker
// proves the handoff by presenting the code the payer was shown at funding.
func (s *Service) VerifyHandshake(ctx context.Context, gigID, actorID uuid.UUID, code string) error {
	gig, esc, err := s.loadFunded(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.AssignedWorkerID == nil || *gig.AssignedWorkerID != actorID {
		return ErrNotWorker
	}
	if esc.HandshakeHash == nil {
		return ErrWrongState
	}
	if bcrypt.CompareHashAndPassword([]byte(*esc.HandshakeHash), []byte(code)) != nil {
		return ErrHandshakeMismatch
	}
	return s.settleCompletion(ctx, gig, esc, models.TxPayoutCredit, nil)
}

// ConfirmRentalReturn settles a rental: the owner confirms the item came back,
// optionally deducting damages from the deposit. The renter gets the deposit
// minus the deduction; the owner gets everything else held.
func (s *Service) ConfirmRentalReturn(ctx context.Context, gigID, actorID uuid.UUID, deduction int64, rating *int) error {
	gig, esc, err := s.loadFunded(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.PosterID != actorID {
		return ErrNotPoster
	}
	if !gig.IsRental() {
		return ErrNotRental
	}
	if deduction < 0 || deduction > esc.SecurityDeposit {
		return ErrInvalidDeduction
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return ErrInvalidRating
	}

	return s.settleRental(ctx, gigID, esc, deduction, models.TxPayoutCredit, rating)
}

// CancelResult reports what the pre-work cancellation refunded and retained.
type CancelResult struct {
	RefundAmount int64 `json:"refund_amount"`
	PlatformFee  int64 `json:"platform_fee"`
}

// Cancel refunds a funded but undelivered gig. The funding-time platform fee
// is the non-refundable cancellation fee.
func (s *Service) Cancel(ctx context.Context, gigID, actorID uuid.UUID) (*CancelResult, error) {
	gig, esc, err := s.loadFunded(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if gig.PosterID != actorID {
		return nil, ErrNotPoster
	}
	if gig.Status != models.GigStatusOpen && gig.Status != models.GigStatusAssigned {
		return nil, ErrWrongState
	}
	if gig.DeliveredAt != nil {
		return nil, ErrWrongState
	}

	split := fees.CancellationSplit(esc.AmountHeld, esc.PlatformFee)
	payer := payerID(gig, esc.WorkerID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.TransitionTx(ctx, tx, gigID, models.EscrowHeld, models.EscrowCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadySettled
	}

	if err := s.recordMovement(ctx, tx, gigID, payer, split.Refund, models.TxRefundCredit); err != nil {
		return nil, err
	}
	if split.PlatformFee > 0 {
		if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
			ID:     uuid.New(),
			GigID:  &gigID,
			UserID: payer,
			Amount: split.PlatformFee,
			Type:   models.TxPlatformFee,
			Status: models.TxStatusCompleted,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.gigs.MarkCancelledTx(ctx, tx, gigID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info("escrow cancelled", "gig_id", gigID, "refund", split.Refund, "cancellation_fee", split.PlatformFee)
	return &CancelResult{RefundAmount: split.Refund, PlatformFee: split.PlatformFee}, nil
}

// RaiseDispute freezes the escrow: once DISPUTE_HELD, every other trigger
// (including the sweep) fails its guard until the dispute is resolved
// off-platform.
func (s *Service) RaiseDispute(ctx context.Context, gigID, actorID uuid.UUID, reason string) error {
	gig, _, err := s.loadFunded(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.PosterID != actorID {
		return ErrNotPoster
	}
	if gig.Status != models.GigStatusDelivered {
		return ErrWrongState
	}
	if len(reason) < 50 {
		return ErrReasonTooShort
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.TransitionTx(ctx, tx, gigID, models.EscrowHeld, models.EscrowDisputeHeld)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadySettled
	}
	if err := s.gigs.MarkDisputedTx(ctx, tx, gigID, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("escrow frozen by dispute", "gig_id", gigID)
	return nil
}

// loadFunded fetches the gig and its escrow record, mapping a missing escrow
// row on a funded gig to an integrity error.
func (s *Service) loadFunded(ctx context.Context, gigID uuid.UUID) (*models.Gig, *models.EscrowRecord, error) {
	gig, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, nil, err
	}
	esc, err := s.escrows.GetByGigID(ctx, gigID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrEscrowMissing
		}
		return nil, nil, err
	}
	return gig, esc, nil
}

// settleCompletion is the shared release path for manual approval, handshake
// and the auto-release sweep. The guarded status transition runs first; if it
// loses the race nothing else is written. Stats and rating updates run after
// commit, best-effort: a failure there never un-reports the money movement.
func (s *Service) settleCompletion(ctx context.Context, gig *models.Gig, esc *models.EscrowRecord, payoutType string, rating *int) error {
	// A rental reaching a completion-style trigger settles as a zero-deduction
	// return. The held rent belongs to the owner, never to the renter.
	if esc.ReleaseCondition == models.ReleaseOnRentalReturn {
		return s.settleRental(ctx, gig.ID, esc, 0, payoutType, rating)
	}

	jobs, err := s.users.JobsCompleted(ctx, esc.WorkerID)
	if err != nil {
		s.log.Warn("fee tier lookup failed at release, using new-user rate", "worker_id", esc.WorkerID, "error", err)
		jobs = -1
	}
	split := s.policy.CompletionSplit(gig.ListingType, esc.AmountHeld, jobs)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.TransitionTx(ctx, tx, gig.ID, models.EscrowHeld, models.EscrowReleased)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadySettled
	}

	if err := s.recordMovement(ctx, tx, gig.ID, esc.WorkerID, split.Payout, payoutType); err != nil {
		return err
	}
	if split.PlatformFee > 0 {
		if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
			ID:     uuid.New(),
			GigID:  &gig.ID,
			UserID: esc.WorkerID,
			Amount: split.PlatformFee,
			Type:   models.TxPlatformFee,
			Status: models.TxStatusCompleted,
		}); err != nil {
			return err
		}
	}
	if err := s.gigs.MarkCompletedTx(ctx, tx, gig.ID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info("escrow released", "gig_id", gig.ID, "payout", split.Payout, "platform_fee", split.PlatformFee, "trigger", payoutType)

	if err := s.users.ApplyCompletionStats(ctx, esc.WorkerID, split.Payout); err != nil {
		s.log.Error("stats update failed after release", "gig_id", gig.ID, "error", err)
	}
	if rating != nil {
		if err := s.users.ApplyRating(ctx, esc.WorkerID, *rating); err != nil {
			s.log.Error("rating update failed after release", "gig_id", gig.ID, "error", err)
		}
	}
	return nil
}

// settleRental settles a RENTAL_RETURN escrow: the owner receives the rent
// plus any deduction, the renter gets the deposit remainder back. Rentals
// never bump completion stats; the renter did no work.
func (s *Service) settleRental(ctx context.Context, gigID uuid.UUID, esc *models.EscrowRecord, deduction int64, payoutType string, rating *int) error {
	split := fees.RentalSplit(esc.AmountHeld, esc.SecurityDeposit, deduction)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.escrows.TransitionTx(ctx, tx, gigID, models.EscrowHeld, models.EscrowReleased)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadySettled
	}

	// Owner payout, then renter deposit refund.
	if err := s.recordMovement(ctx, tx, gigID, esc.PosterID, split.Payout, payoutType); err != nil {
		return err
	}
	if split.Refund > 0 {
		if err := s.recordMovement(ctx, tx, gigID, esc.WorkerID, split.Refund, models.TxRefundCredit); err != nil {
			return err
		}
	}
	if err := s.gigs.MarkCompletedTx(ctx, tx, gigID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info("rental escrow released", "gig_id", gigID, "payout", split.Payout, "refund", split.Refund, "deduction", deduction, "trigger", payoutType)
	if rating != nil {
		if err := s.users.ApplyRating(ctx, esc.WorkerID, *rating); err != nil {
			s.log.Error("rating update failed after release", "gig_id", gigID, "error", err)
		}
	}
	return nil
}

// recordMovement writes one COMPLETED journal row, credits the destination
// wallet, records the payout queue entry and enqueues its dispatch job, all
// inside the settlement transaction.
func (s *Service) recordMovement(ctx context.Context, tx pgx.Tx, gigID, userID uuid.UUID, amount int64, txType string) error {
	if amount <= 0 {
		return nil
	}
	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:     uuid.New(),
		GigID:  &gigID,
		UserID: userID,
		Amount: amount,
		Type:   txType,
		Status: models.TxStatusCompleted,
	}); err != nil {
		return err
	}
	if err := s.users.CreditWalletTx(ctx, tx, userID, amount); err != nil {
		return err
	}
	entry := &models.PayoutQueueEntry{
		ID:     uuid.New(),
		UserID: userID,
		GigID:  &gigID,
		Amount: amount,
		Status: models.PayoutStatusPending,
	}
	if err := s.payouts.CreateTx(ctx, tx, entry); err != nil {
		return err
	}
	if s.enqueue != nil {
		return s.enqueue(ctx, tx, payout.DispatchArgs{
			EntryID: entry.ID,
			UserID:  userID,
			Amount:  amount,
		})
	}
	return nil
}
