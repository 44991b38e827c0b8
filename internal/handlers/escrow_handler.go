package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/escrow"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/middleware"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

// SettlementService abstracts the escrow operations the handler exposes.
type SettlementService interface {
	CreateOrder(ctx context.Context, gigID, actorID, applicationID uuid.UUID) (*escrow.CheckoutOrder, error)
	Fund(ctx context.Context, gigID uuid.UUID, gatewayOrderID string) (*escrow.FundResult, error)
	Deliver(ctx context.Context, gigID, actorID uuid.UUID, deliveryLink *string) error
	Release(ctx context.Context, gigID, actorID uuid.UUID, rating *int) error
	VerifyHandshake(ctx context.Context, gigID, actorID uuid.UUID, code string) error
	ConfirmRentalReturn(ctx context.Context, gigID, actorID uuid.UUID, deduction int64, rating *int) error
	Cancel(ctx context.Context, gigID, actorID uuid.UUID) (*escrow.CancelResult, error)
	RaiseDispute(ctx context.Context, gigID, actorID uuid.UUID, reason string) error
	SweepAutoRelease(ctx context.Context) (*escrow.SweepResult, error)
}

// JournalReader lists a gig's journal rows for the audit endpoint.
type JournalReader interface {
	ListByGigID(ctx context.Context, gigID uuid.UUID) ([]*models.Transaction, error)
}

// GigReader resolves gig parties for journal access checks.
type GigReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

// EscrowHandler serves the funding and settlement endpoints under /v1/gigs.
type EscrowHandler struct {
	Settlement SettlementService
	Journal    JournalReader
	Gigs       GigReader
	Logger     *slog.Logger
}

// requireIdentity resolves the authenticated caller or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return ident, true
}

type createOrderRequest struct {
	ApplicationID string `json:"application_id"`
}

// CreateOrder handles POST /v1/gigs/{id}/fund/order: freeze the fee breakdown
// and register the gateway order the client pays against.
func (h *EscrowHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	appID, err := uuid.Parse(req.ApplicationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid application_id")
		return
	}

	order, err := h.Settlement.CreateOrder(r.Context(), gigID, ident.UserID, appID)
	if err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type verifyPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
}

// VerifyPayment handles POST /v1/gigs/{id}/fund/verify: the idempotency gate.
// Replays of an already verified order return 200 with already_processed set.
func (h *EscrowHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
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

	res, err := h.Settlement.Fund(r.Context(), gigID, req.GatewayOrderID)
	if err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type deliverRequest struct {
	DeliveryLink string `json:"delivery_link,omitempty"`
}

// Deliver handles POST /v1/gigs/{id}/deliver.
func (h *EscrowHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var link *string
	if req.DeliveryLink != "" {
		link = &req.DeliveryLink
	}

	if err := h.Settlement.Deliver(r.Context(), gigID, ident.UserID, link); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.GigStatusDelivered})
}

type releaseRequest struct {
	Rating *int `json:"rating,omitempty"`
}

// Release handles POST /v1/gigs/{id}/release: the poster's manual approval.
func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req releaseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	if err := h.Settlement.Release(r.Context(), gigID, ident.UserID, req.Rating); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type handshakeRequest struct {
	Code string `json:"code"`
}

// Handshake handles POST /v1/gigs/{id}/handshake: the worker proves the
// in-person handoff with the code shown to the payer at funding.
func (h *EscrowHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req handshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.Settlement.VerifyHandshake(r.Context(), gigID, ident.UserID, req.Code); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type rentalReturnRequest struct {
	Deduction int64 `json:"deduction"`
	Rating    *int  `json:"rating,omitempty"`
}

// RentalReturn handles POST /v1/gigs/{id}/return: the owner confirms the item
// came back, optionally deducting damages from the deposit.
func (h *EscrowHandler) RentalReturn(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req rentalReturnRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	if err := h.Settlement.ConfirmRentalReturn(r.Context(), gigID, ident.UserID, req.Deduction, req.Rating); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

// Dispute handles POST /v1/gigs/{id}/dispute: freezes the escrow.
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.Settlement.RaiseDispute(r.Context(), gigID, ident.UserID, req.Reason); err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.GigStatusDisputed})
}

// Cancel handles POST /v1/gigs/{id}/cancel: pre-work refund minus the
// funding-time platform fee.
func (h *EscrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}

	res, err := h.Settlement.Cancel(r.Context(), gigID, ident.UserID)
	if err != nil {
		writeSettlementError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListJournal handles GET /v1/gigs/{id}/transactions. Only the gig's parties
// may read its journal.
func (h *EscrowHandler) ListJournal(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	gigID, ok := extractGigID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	gig, err := h.Gigs.GetByID(r.Context(), gigID)
	if err != nil {
		writeError(w, http.StatusNotFound, "gig not found")
		return
	}
	isParty := gig.PosterID == ident.UserID ||
		(gig.AssignedWorkerID != nil && *gig.AssignedWorkerID == ident.UserID)
	if !isParty && !ident.IsAdmin {
		writeError(w, http.StatusForbidden, "not a party to this gig")
		return
	}

	txns, err := h.Journal.ListByGigID(r.Context(), gigID)
	if err != nil {
		h.Logger.Error("list gig journal", "gig_id", gigID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// Sweep handles POST /v1/internal/sweep. Reachable only through the sweep
// secret middleware; the in-process scheduler calls the service directly.
func (h *EscrowHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Settlement.SweepAutoRelease(r.Context())
	if err != nil {
		h.Logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
