// Package payout dispatches payout queue entries to the external
// bank-transfer process. Settlement enqueues one dispatch job per entry in
// the same database transaction; the worker here runs after commit.
package payout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type DispatchArgs struct {
	EntryID uuid.UUID `json:"entry_id"`
	UserID  uuid.UUID `json:"user_id"`
	Amount  int64     `json:"amount"`
}

func (DispatchArgs) Kind() string { return "payout_dispatch" }

// Transfer submits one transfer instruction to the external rail. The real
// implementation hands the instruction to the manual bank-transfer tooling;
// tests substitute their own.
type Transfer interface {
	Submit(ctx context.Context, userID uuid.UUID, amount int64) error
}

// EntryStore is the payout queue subset the worker needs.
type EntryStore interface {
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

type DispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]
	transfer Transfer
	entries  EntryStore
	log      *slog.Logger
}

func NewDispatchWorker(transfer Transfer, entries EntryStore, log *slog.Logger) *DispatchWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchWorker{transfer: transfer, entries: entries, log: log}
}

func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	args := job.Args

	if err := w.transfer.Submit(ctx, args.UserID, args.Amount); err != nil {
		// Returning the error lets River retry with backoff; the entry
		// stays PENDING until a submit succeeds.
		return fmt.Errorf("submit transfer for entry %s: %w", args.EntryID, err)
	}

	ok, err := w.entries.MarkCompleted(ctx, args.EntryID)
	if err != nil {
		return fmt.Errorf("mark payout entry completed: %w", err)
	}
	if !ok {
		// Replayed job after a prior success; nothing left to do.
		w.log.Warn("payout entry already completed", "entry_id", args.EntryID)
	}
	return nil
}

// LogTransfer is the default Transfer: it records the instruction for the
// manual transfer tooling to pick up. Physical payout execution is outside
// this system.
type LogTransfer struct {
	Log *slog.Logger
}

func (t LogTransfer) Submit(_ context.Context, userID uuid.UUID, amount int64) error {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("payout instruction recorded", "user_id", userID, "amount", amount)
	return nil
}
