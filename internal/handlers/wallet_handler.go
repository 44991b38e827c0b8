package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

// WalletService abstracts top-ups and withdrawals.
type WalletService interface {
	CreateTopupOrder(ctx context.Context, userID uuid.UUID, amount int64) (string, error)
	VerifyTopup(ctx context.Context, userID uuid.UUID, gatewayOrderID string) error
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, upiID string) (*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, requestID uuid.UUID) error
	RejectWithdrawal(ctx context.Context, requestID uuid.UUID) error
}

// WithdrawalLister feeds the admin review queue.
type WithdrawalLister interface {
	ListPending(ctx context.Context) ([]*models.WithdrawalRequest, error)
}

// UserJournalReader lists a user's own journal rows.
type UserJournalReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
}

// WalletHandler serves /v1/wallet and the admin withdrawal endpoints.
type WalletHandler struct {
	Wallet      WalletService
	Withdrawals WithdrawalLister
	Journal     UserJournalReader
	Logger      *slog.Logger
}

type topupOrderRequest struct {
	Amount int64 `json:"amount"`
}

// CreateTopupOrder handles POST /v1/wallet/topup/order.
func (h *WalletHandler) CreateTopupOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req topupOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	orderID, err := h.Wallet.CreateTopupOrder(r.Context(), ident.UserID, req.Amount)
	if err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"gateway_order_id": orderID,
		"amount":           req.Amount,
	})
}

// VerifyTopup handles POST /v1/wallet/topup/verify. Replays are no-op 200s.
func (h *WalletHandler) VerifyTopup(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.GatewayOrderID == "" {
		writeError(w, http.StatusBadRequest, "gateway_order_id is required")
		return
	}

	if err := h.Wallet.VerifyTopup(r.Context(), ident.UserID, req.GatewayOrderID); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

type withdrawalRequest struct {
	Amount int64  `json:"amount"`
	UPIID  string `json:"upi_id"`
}

// RequestWithdrawal handles POST /v1/wallet/withdrawals.
func (h *WalletHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UPIID == "" {
		writeError(w, http.StatusBadRequest, "upi_id is required")
		return
	}

	wr, err := h.Wallet.RequestWithdrawal(r.Context(), ident.UserID, req.Amount, req.UPIID)
	if err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

// ListTransactions handles GET /v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	txns, err := h.Journal.ListByUser(r.Context(), ident.UserID)
	if err != nil {
		h.Logger.Error("list user journal", "user_id", ident.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// ListPendingWithdrawals handles GET /v1/admin/withdrawals.
func (h *WalletHandler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Withdrawals.ListPending(r.Context())
	if err != nil {
		h.Logger.Error("list pending withdrawals", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if reqs == nil {
		reqs = []*models.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// DecideWithdrawal handles POST /v1/admin/withdrawals/{id}/approve and
// /reject. The decision comes from the route, not the body.
func (h *WalletHandler) DecideWithdrawal(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid withdrawal id")
			return
		}
		if approve {
			err = h.Wallet.ApproveWithdrawal(r.Context(), reqID)
		} else {
			err = h.Wallet.RejectWithdrawal(r.Context(), reqID)
		}
		if err != nil {
			writeSettlementError(w, h.Logger, err)
			return
		}
		status := models.WithdrawalRejected
		if approve {
			status = models.WithdrawalApproved
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}
