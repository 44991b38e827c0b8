// Package wallet handles the money that is not held against a gig: top-ups
// into a user's balance and withdrawal requests out of it. Withdrawals debit
// the balance up front and credit it back on rejection, so the balance never
// double-spends against a pending request.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payments"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payout"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/repository"
)

var (
	// ErrInvalidAmount is returned for a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the balance.
	ErrInsufficientBalance = repository.ErrInsufficientBalance
	// ErrAlreadyDecided is returned when a withdrawal request was already
	// approved or rejected.
	ErrAlreadyDecided = errors.New("withdrawal request already decided")
	// ErrOrderMissing is returned when no top-up order exists for the id.
	ErrOrderMissing = errors.New("no top-up order for gateway order id")
	// ErrPaymentNotCaptured is returned when the gateway has not captured
	// the top-up payment yet.
	ErrPaymentNotCaptured = errors.New("top-up payment not captured by gateway")
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type UserStore interface {
	DebitWallet(ctx context.Context, id uuid.UUID, amount int64) error
	CreditWallet(ctx context.Context, id uuid.UUID, amount int64) error
	CreditWalletTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
}

type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) (bool, error)
}

type PayoutStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutQueueEntry) error
}

// EnqueuePayoutTxFunc matches the escrow service's transactional enqueue hook.
type EnqueuePayoutTxFunc func(ctx context.Context, tx pgx.Tx, args payout.DispatchArgs) error

type Service struct {
	db          TxBeginner
	users       UserStore
	txns        TransactionStore
	withdrawals WithdrawalStore
	payouts     PayoutStore
	gateway     payments.Gateway
	enqueue     EnqueuePayoutTxFunc
	log         *slog.Logger
}

func NewService(db TxBeginner, users UserStore, txns TransactionStore, withdrawals WithdrawalStore, payouts PayoutStore, gateway payments.Gateway, enqueue EnqueuePayoutTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, users: users, txns: txns, withdrawals: withdrawals, payouts: payouts, gateway: gateway, enqueue: enqueue, log: log}
}

// CreateTopupOrder registers a gateway order for a wallet top-up and writes
// the PENDING journal row verification later completes.
func (s *Service) CreateTopupOrder(ctx context.Context, userID uuid.UUID, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	order, err := s.gateway.CreateOrder(ctx, amount, "topup:"+userID.String())
	if err != nil {
		return "", err
	}
	gatewayID := order.ID
	if err := s.txns.Create(ctx, &models.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         amount,
		Type:           models.TxWalletTopup,
		Status:         models.TxStatusPending,
		GatewayOrderID: &gatewayID,
	}); err != nil {
		return "", err
	}
	return order.ID, nil
}

// VerifyTopup credits the wallet once per gateway order, no matter how many
// times the webhook or client retries it.
func (s *Service) VerifyTopup(ctx context.Context, userID uuid.UUID, gatewayOrderID string) error {
	t, err := s.txns.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrOrderMissing, gatewayOrderID)
		}
		return err
	}
	if t.Type != models.TxWalletTopup || t.UserID != userID {
		return fmt.Errorf("%w: order does not match user", ErrOrderMissing)
	}
	if t.Status == models.TxStatusCompleted {
		return nil
	}

	order, err := s.gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	if order.Status != payments.OrderStatusPaid {
		return fmt.Errorf("%w: gateway reports %q", ErrPaymentNotCaptured, order.Status)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.txns.MarkCompletedTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	if !ok {
		// Concurrent verification already credited the wallet.
		return nil
	}
	if err := s.users.CreditWalletTx(ctx, tx, userID, t.Amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RequestWithdrawal debits the balance and files a PENDING request for the
// admin to decide.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, upiID string) (*models.WithdrawalRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.users.DebitWallet(ctx, userID, amount); err != nil {
		return nil, err
	}
	req := &models.WithdrawalRequest{
		ID:     uuid.New(),
		UserID: userID,
		Amount: amount,
		UPIID:  upiID,
		Status: models.WithdrawalPending,
	}
	if err := s.withdrawals.Create(ctx, req); err != nil {
		// The debit already happened; put the money back.
		if crErr := s.users.CreditWallet(ctx, userID, amount); crErr != nil {
			s.log.Error("failed to restore balance after withdrawal create failure", "user_id", userID, "amount", amount, "error", crErr)
		}
		return nil, err
	}
	return req, nil
}

// ApproveWithdrawal journals the approval and queues the payout for the
// external transfer process. The status flip commits in the same transaction
// as the journal row and queue entry: a failed approval leaves the request
// PENDING and retryable.
func (s *Service) ApproveWithdrawal(ctx context.Context, requestID uuid.UUID) error {
	req, err := s.withdrawals.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.withdrawals.DecideTx(ctx, tx, requestID, models.WithdrawalApproved)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyDecided
	}

	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:     uuid.New(),
		UserID: req.UserID,
		Amount: req.Amount,
		Type:   models.TxWithdrawalApproved,
		Status: models.TxStatusCompleted,
	}); err != nil {
		return err
	}
	entry := &models.PayoutQueueEntry{
		ID:     uuid.New(),
		UserID: req.UserID,
		Amount: req.Amount,
		Status: models.PayoutStatusPending,
	}
	if err := s.payouts.CreateTx(ctx, tx, entry); err != nil {
		return err
	}
	if s.enqueue != nil {
		if err := s.enqueue(ctx, tx, payout.DispatchArgs{EntryID: entry.ID, UserID: req.UserID, Amount: req.Amount}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RejectWithdrawal returns the debited amount to the wallet. The status flip,
// the refund credit and the journal row commit together.
func (s *Service) RejectWithdrawal(ctx context.Context, requestID uuid.UUID) error {
	req, err := s.withdrawals.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.withdrawals.DecideTx(ctx, tx, requestID, models.WithdrawalRejected)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyDecided
	}
	if err := s.users.CreditWalletTx(ctx, tx, req.UserID, req.Amount); err != nil {
		return err
	}
	if err := s.txns.CreateTx(ctx, tx, &models.Transaction{
		ID:     uuid.New(),
		UserID: req.UserID,
		Amount: req.Amount,
		Type:   models.TxWithdrawalRejected,
		Status: models.TxStatusCompleted,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
