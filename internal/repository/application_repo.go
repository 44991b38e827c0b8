package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type ApplicationRepo struct {
	pool *pgxpool.Pool
}

func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool}
}

func (r *ApplicationRepo) Create(ctx context.Context, a *models.Application) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO gig_applications (id, gig_id, worker_id, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, a.ID, a.GigID, a.WorkerID, a.Message, a.Status).Scan(&a.CreatedAt)
}

func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var a models.Application
	err := r.pool.QueryRow(ctx, `
		SELECT id, gig_id, worker_id, message, status, created_at
		FROM gig_applications WHERE id = $1
	`, id).Scan(&a.ID, &a.GigID, &a.WorkerID, &a.Message, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AcceptTx marks one application accepted and every rival on the same gig
// rejected, inside the funding transaction.
func (r *ApplicationRepo) AcceptTx(ctx context.Context, tx pgx.Tx, gigID, applicationID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE gig_applications SET status = $1 WHERE id = $2 AND gig_id = $3
	`, models.ApplicationAccepted, applicationID, gigID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE gig_applications SET status = $1 WHERE gig_id = $2 AND id <> $3 AND status = $4
	`, models.ApplicationRejected, gigID, applicationID, models.ApplicationApplied)
	return err
}

func (r *ApplicationRepo) ListByGig(ctx context.Context, gigID uuid.UUID) ([]*models.Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, gig_id, worker_id, message, status, created_at
		FROM gig_applications WHERE gig_id = $1 ORDER BY created_at ASC
	`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(&a.ID, &a.GigID, &a.WorkerID, &a.Message, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
