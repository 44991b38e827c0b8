package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/escrow"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/fees"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payments"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/wallet"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSettlementError maps the settlement engine's error taxonomy onto HTTP
// statuses. Unknown errors are logged and reported as 500 without leaking
// internals.
func writeSettlementError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	// Validation: user-correctable input.
	case errors.Is(err, escrow.ErrInvalidDeduction),
		errors.Is(err, escrow.ErrReasonTooShort),
		errors.Is(err, escrow.ErrInvalidRating),
		errors.Is(err, escrow.ErrNotRental),
		errors.Is(err, fees.ErrInvalidPrice),
		errors.Is(err, fees.ErrInvalidDeposit),
		errors.Is(err, fees.ErrUnknownListing),
		errors.Is(err, wallet.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())

	// Authorization: wrong actor for the role.
	case errors.Is(err, escrow.ErrNotPoster),
		errors.Is(err, escrow.ErrNotWorker),
		errors.Is(err, escrow.ErrNotPayer),
		errors.Is(err, escrow.ErrHandshakeMismatch):
		writeError(w, http.StatusForbidden, err.Error())

	// State conflicts: the caller lost a race or repeated an action.
	case errors.Is(err, escrow.ErrAlreadySettled),
		errors.Is(err, escrow.ErrWrongState),
		errors.Is(err, escrow.ErrAlreadyFunded),
		errors.Is(err, wallet.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, err.Error())

	// Upstream: payment not captured yet, caller retries with backoff.
	case errors.Is(err, escrow.ErrPaymentNotCaptured),
		errors.Is(err, wallet.ErrPaymentNotCaptured):
		writeError(w, http.StatusPaymentRequired, err.Error())

	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())

	case errors.Is(err, escrow.ErrOrderMissing),
		errors.Is(err, wallet.ErrOrderMissing):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")

	case errors.Is(err, payments.ErrGatewayUnavailable):
		log.Error("payment gateway unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway unavailable")

	default:
		// ErrEscrowMissing lands here intentionally: a funded gig without an
		// escrow record is an integrity bug, not a client error.
		log.Error("settlement operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
