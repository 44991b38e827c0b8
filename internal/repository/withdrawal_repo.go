package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount, upi_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, w.ID, w.UserID, w.Amount, w.UPIID, w.Status).Scan(&w.CreatedAt)
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, amount, upi_id, status, created_at, decided_at
		FROM withdrawal_requests WHERE id = $1
	`, id).Scan(&w.ID, &w.UserID, &w.Amount, &w.UPIID, &w.Status, &w.CreatedAt, &w.DecidedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// DecideTx flips a PENDING request to APPROVED or REJECTED inside the
// caller's transaction, so the decision commits together with the journal
// row and any payout queue entry. Returns false when the request was
// already decided.
func (r *WithdrawalRepo) DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $1, decided_at = now()
		WHERE id = $2 AND status = $3
	`, status, id, models.WithdrawalPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WithdrawalRepo) ListPending(ctx context.Context) ([]*models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, upi_id, status, created_at, decided_at
		FROM withdrawal_requests WHERE status = $1 ORDER BY created_at ASC
	`, models.WithdrawalPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.UPIID, &w.Status, &w.CreatedAt, &w.DecidedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
