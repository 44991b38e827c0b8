// Package escrow is the settlement state machine: it takes custody of a
// payer's money at payment verification, holds it as a liability against the
// gig, and moves it to its final destination through exactly one of the
// release triggers. Every trigger funnels through a status-guarded
// compare-and-swap on the escrow record, so concurrent triggers resolve to a
// single winner without a global lock.
package escrow

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/fees"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payments"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payout"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// GigStore is the gig repository subset the settlement engine needs.
type GigStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	MarkAssignedTx(ctx context.Context, tx pgx.Tx, gigID, workerID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, gigID, workerID uuid.UUID, autoReleaseAt time.Time, deliveryLink *string) (bool, error)
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID) error
	MarkDisputedTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID, reason string) error
	MarkCancelledTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID) error
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]*models.Gig, error)
}

// EscrowStore is the custody record repository subset.
type EscrowStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.EscrowRecord) error
	GetByGigID(ctx context.Context, gigID uuid.UUID) (*models.EscrowRecord, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID, from, to string) (bool, error)
}

// TransactionStore is the journal repository subset.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// UserStore is the user projection subset: tier lookup, wallet credits and
// the post-release stat updates.
type UserStore interface {
	JobsCompleted(ctx context.Context, id uuid.UUID) (int, error)
	CreditWalletTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	ApplyCompletionStats(ctx context.Context, id uuid.UUID, earned int64) error
	ApplyRating(ctx context.Context, id uuid.UUID, score int) error
}

// ApplicationStore finalizes application acceptance at funding time.
type ApplicationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	AcceptTx(ctx context.Context, tx pgx.Tx, gigID, applicationID uuid.UUID) error
}

// PayoutStore records "pay this user" entries for the external transfer process.
type PayoutStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutQueueEntry) error
}

// EnqueuePayoutTxFunc enqueues a payout dispatch job within the given
// transaction. Provided by main using river.Client.InsertTx; nil disables
// async dispatch (entries stay PENDING for manual processing).
type EnqueuePayoutTxFunc func(ctx context.Context, tx pgx.Tx, args payout.DispatchArgs) error

// Deps wires the service. Gateway and EnqueuePayoutTx are optional in tests.
type Deps struct {
	DB              TxBeginner
	Gigs            GigStore
	Escrows         EscrowStore
	Transactions    TransactionStore
	Users           UserStore
	Applications    ApplicationStore
	Payouts         PayoutStore
	Gateway         payments.Gateway
	Policy          fees.Policy
	EnqueuePayoutTx EnqueuePayoutTxFunc
	Logger          *slog.Logger
}

type Service struct {
	db      TxBeginner
	gigs    GigStore
	escrows EscrowStore
	txns    TransactionStore
	users   UserStore
	apps    ApplicationStore
	payouts PayoutStore
	gateway payments.Gateway
	policy  fees.Policy
	enqueue EnqueuePayoutTxFunc
	log     *slog.Logger
	now     func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		db:      d.DB,
		gigs:    d.Gigs,
		escrows: d.Escrows,
		txns:    d.Transactions,
		users:   d.Users,
		apps:    d.Applications,
		payouts: d.Payouts,
		gateway: d.Gateway,
		policy:  d.Policy,
		enqueue: d.EnqueuePayoutTx,
		log:     d.Logger,
		now:     time.Now,
	}
}

// orderData is the fee breakdown frozen into the ESCROW_DEPOSIT row at order
// creation. Verification reads it back instead of recomputing from a possibly
// changed price.
type orderData struct {
	fees.Breakdown
	WorkerID      uuid.UUID `json:"worker_id"`
	ApplicationID uuid.UUID `json:"application_id"`
	PolicyVersion int       `json:"policy_version"`
}

// CheckoutOrder is returned to the client to start gateway checkout.
type CheckoutOrder struct {
	GatewayOrderID string `json:"gateway_order_id"`
	TotalPayable   int64  `json:"total_payable"`
	PlatformFee    int64  `json:"platform_fee"`
	GatewayFee     int64  `json:"gateway_fee"`
}

// payerID returns the party who funds the escrow: for rentals the renter
// (worker side) pays the rent plus deposit, for everything else the poster
// pays.
func payerID(gig *models.Gig, workerID uuid.UUID) uuid.UUID {
	if gig.IsRental() {
		return workerID
	}
	return gig.PosterID
}

// CreateOrder freezes the fee breakdown for accepting an application and
// registers a gateway order. The PENDING ESCROW_DEPOSIT row it writes is the
// idempotency anchor for the later verification.
func (s *Service) CreateOrder(ctx context.Context, gigID, actorID, applicationID uuid.UUID) (*CheckoutOrder, error) {
	gig, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if gig.Status != models.GigStatusOpen {
		return nil, ErrWrongState
	}
	if _, err := s.escrows.GetByGigID(ctx, gigID); err == nil {
		return nil, ErrAlreadyFunded
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.GigID != gigID || app.Status != models.ApplicationApplied {
		return nil, ErrWrongState
	}
	if actorID != payerID(gig, app.WorkerID) {
		return nil, ErrNotPayer
	}

	// Tier lookup failure falls back to the new-user rate rather than
	// under-charging the platform fee.
	jobs, err := s.users.JobsCompleted(ctx, app.WorkerID)
	if err != nil {
		s.log.Warn("fee tier lookup failed, using new-user rate", "worker_id", app.WorkerID, "error", err)
		jobs = -1
	}
	marketType := ""
	if gig.MarketType != nil {
		marketType = *gig.MarketType
	}
	breakdown, err := s.policy.Compute(gig.ListingType, marketType, gig.Price, gig.SecurityDeposit, jobs)
	if err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, breakdown.TotalPayable, gigID.String())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(orderData{
		Breakdown:     breakdown,
		WorkerID:      app.WorkerID,
		ApplicationID: applicationID,
		PolicyVersion: s.policy.Version,
	})
	if err != nil {
		return nil, err
	}
	gatewayID := order.ID
	if err := s.txns.Create(ctx, &models.Transaction{
		ID:             uuid.New(),
		GigID:          &gigID,
		UserID:         actorID,
		Amount:         breakdown.TotalPayable,
		Type:           models.TxEscrowDeposit,
		Status:         models.TxStatusPending,
		GatewayOrderID: &gatewayID,
		ProviderData:   data,
	}); err != nil {
		return nil, err
	}

	return &CheckoutOrder{
		GatewayOrderID: order.ID,
		TotalPayable:   breakdown.TotalPayable,
		PlatformFee:    breakdown.PlatformFee,
		GatewayFee:     breakdown.GatewayFee,
	}, nil
}

// FundResult reports the outcome of payment verification. HandshakeCode is
// set only on the first successful verification of a non-rental gig and is
// never persisted in the clear.
type FundResult struct {
	AlreadyProcessed bool   `json:"already_processed"`
	HandshakeCode    string `json:"handshake_code,omitempty"`
}

// Fund is the idempotency gate: given a gateway order id it confirms the
// payment upstream, flips the PENDING deposit row to COMPLETED, creates the
// HELD escrow record from the frozen breakdown, and assigns the gig. Replays
// of an already COMPLETED order are a no-op success.
func (s *Service) Fund(ctx context.Context, gigID uuid.UUID, gatewayOrderID string) (*FundResult, error) {
	t, err := s.txns.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderMissing, gatewayOrderID)
		}
		return nil, err
	}
	if t.GigID == nil || *t.GigID != gigID {
		return nil, fmt.Errorf("%w: order belongs to a different gig", ErrOrderMissing)
	}
	if t.Status == models.TxStatusCompleted {
		return &FundResult{AlreadyProcessed: true}, nil
	}

	order, err := s.gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != payments.OrderStatusPaid {
		return nil, fmt.Errorf("%w: gateway reports %q", ErrPaymentNotCaptured, order.Status)
	}

	var data orderData
	if err := json.Unmarshal(t.ProviderData, &data); err != nil {
		return nil, fmt.Errorf("%w: corrupt order breakdown: %v", ErrOrderMissing, err)
	}

	gig, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, err
	}

	var code string
	var handshakeHash *string
	if !gig.IsRental() {
		code, err = generateHandshakeCode()
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		h := string(hash)
		handshakeHash = &h
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Guarded flip of the PENDING row: losing this race means a concurrent
	// verification already did the work, so report idempotent success.
	ok, err := s.txns.MarkCompletedTx(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &FundResult{AlreadyProcessed: true}, nil
	}

	ok, err = s.gigs.MarkAssignedTx(ctx, tx, gigID, data.WorkerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongState
	}
	if err := s.apps.AcceptTx(ctx, tx, gigID, data.ApplicationID); err != nil {
		return nil, err
	}

	condition := models.ReleaseOnCompletion
	if gig.IsRental() {
		condition = models.ReleaseOnRentalReturn
	}
	if err := s.escrows.CreateTx(ctx, tx, &models.EscrowRecord{
		ID:               uuid.New(),
		GigID:            gigID,
		PosterID:         gig.PosterID,
		WorkerID:         data.WorkerID,
		OriginalAmount:   gig.Price,
		SecurityDeposit:  gig.SecurityDeposit,
		PlatformFee:      data.PlatformFee,
		GatewayFee:       data.GatewayFee,
		AmountHeld:       data.AmountHeld,
		NetAmount:        data.NetWorkerPay,
		Status:           models.EscrowHeld,
		ReleaseCondition: condition,
		ReleaseDate:      s.now().Add(s.policy.ReleaseSLA),
		HandshakeHash:    handshakeHash,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("escrow funded", "gig_id", gigID, "amount_held", data.AmountHeld, "worker_id", data.WorkerID)
	return &FundResult{HandshakeCode: code}, nil
}

// Deliver marks an assigned gig delivered and arms the review window timer.
func (s *Service) Deliver(ctx context.Context, gigID, actorID uuid.UUID, deliveryLink *string) error {
	gig, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return err
	}
	if gig.AssignedWorkerID == nil || *gig.AssignedWorkerID != actorID {
		return ErrNotWorker
	}
	ok, err := s.gigs.MarkDelivered(ctx, gigID, actorID, s.now().Add(s.policy.ReviewWindow), deliveryLink)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWrongState
	}
	return nil
}

func generateHandshakeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
