package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const txnColumns = `id, gig_id, user_id, amount, type, status, gateway_order_id, provider_data, created_at`

func scanTxn(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.GigID, &t.UserID, &t.Amount, &t.Type, &t.Status,
		&t.GatewayOrderID, &t.ProviderData, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, gig_id, user_id, amount, type, status, gateway_order_id, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.GigID, t.UserID, t.Amount, t.Type, t.Status, t.GatewayOrderID, t.ProviderData).Scan(&t.CreatedAt)
}

// CreateTx inserts a journal row inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, gig_id, user_id, amount, type, status, gateway_order_id, provider_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.GigID, t.UserID, t.Amount, t.Type, t.Status, t.GatewayOrderID, t.ProviderData).Scan(&t.CreatedAt)
}

// GetByGatewayOrderID is the idempotency lookup for payment verification.
func (r *TransactionRepo) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	return scanTxn(r.pool.QueryRow(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE gateway_order_id = $1
	`, orderID))
}

// MarkCompletedTx flips a PENDING row to COMPLETED. Returns false when the row
// was not PENDING anymore, which a concurrent verification replay hits.
func (r *TransactionRepo) MarkCompletedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3
	`, models.TxStatusCompleted, id, models.TxStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3
	`, models.TxStatusFailed, id, models.TxStatusPending)
	return err
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *TransactionRepo) ListByGigID(ctx context.Context, gigID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE gig_id = $1 ORDER BY created_at ASC
	`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
