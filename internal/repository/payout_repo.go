package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PayoutQueueEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payout_queue (id, user_id, gig_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.UserID, p.GigID, p.Amount, p.Status).Scan(&p.CreatedAt)
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutQueueEntry, error) {
	var p models.PayoutQueueEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, gig_id, amount, status, created_at, completed_at
		FROM payout_queue WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.GigID, &p.Amount, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkCompleted flips a PENDING entry to COMPLETED. Returns false for a
// replayed dispatch.
func (r *PayoutRepo) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payout_queue SET status = $1, completed_at = now()
		WHERE id = $2 AND status = $3
	`, models.PayoutStatusCompleted, id, models.PayoutStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PayoutRepo) ListPending(ctx context.Context, limit int) ([]*models.PayoutQueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, gig_id, amount, status, created_at, completed_at
		FROM payout_queue WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, models.PayoutStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutQueueEntry
	for rows.Next() {
		var p models.PayoutQueueEntry
		if err := rows.Scan(&p.ID, &p.UserID, &p.GigID, &p.Amount, &p.Status, &p.CreatedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
