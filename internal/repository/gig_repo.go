package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type GigRepo struct {
	pool *pgxpool.Pool
}

func NewGigRepo(pool *pgxpool.Pool) *GigRepo {
	return &GigRepo{pool: pool}
}

const gigColumns = `id, poster_id, assigned_worker_id, listing_type, market_type, title, description,
	price, security_deposit, status, payment_status, dispute_reason, delivery_link,
	auto_release_at, delivered_at, released_at, cancelled_at, created_at, updated_at`

func scanGig(row pgx.Row) (*models.Gig, error) {
	var g models.Gig
	err := row.Scan(&g.ID, &g.PosterID, &g.AssignedWorkerID, &g.ListingType, &g.MarketType,
		&g.Title, &g.Description, &g.Price, &g.SecurityDeposit, &g.Status, &g.PaymentStatus,
		&g.DisputeReason, &g.DeliveryLink, &g.AutoReleaseAt, &g.DeliveredAt, &g.ReleasedAt,
		&g.CancelledAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GigRepo) Create(ctx context.Context, g *models.Gig) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO gigs (id, poster_id, listing_type, market_type, title, description, price, security_deposit, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, g.ID, g.PosterID, g.ListingType, g.MarketType, g.Title, g.Description, g.Price, g.SecurityDeposit, g.Status, g.PaymentStatus).Scan(&g.CreatedAt, &g.UpdatedAt)
}

func (r *GigRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	return scanGig(r.pool.QueryRow(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, id))
}

// MarkAssignedTx moves an open gig to assigned/HELD. Returns false when the
// gig is no longer open (a rival verification already won).
func (r *GigRepo) MarkAssignedTx(ctx context.Context, tx pgx.Tx, gigID, workerID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE gigs SET status = $1, payment_status = $2, assigned_worker_id = $3, updated_at = now()
		WHERE id = $4 AND status = $5
	`, models.GigStatusAssigned, models.PaymentStatusHeld, workerID, gigID, models.GigStatusOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDelivered moves an assigned gig to delivered and arms the auto-release
// timer. Guarded on both status and the acting worker.
func (r *GigRepo) MarkDelivered(ctx context.Context, gigID, workerID uuid.UUID, autoReleaseAt time.Time, deliveryLink *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE gigs SET status = $1, delivery_link = COALESCE($2, delivery_link),
			auto_release_at = $3, delivered_at = now(), updated_at = now()
		WHERE id = $4 AND status = $5 AND assigned_worker_id = $6
	`, models.GigStatusDelivered, deliveryLink, autoReleaseAt, gigID, models.GigStatusAssigned, workerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *GigRepo) MarkCompletedTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE gigs SET status = $1, payment_status = $2, released_at = now(), updated_at = now()
		WHERE id = $3
	`, models.GigStatusCompleted, models.PaymentStatusReleased, gigID)
	return err
}

func (r *GigRepo) MarkDisputedTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE gigs SET status = $1, payment_status = $2, dispute_reason = $3, updated_at = now()
		WHERE id = $4
	`, models.GigStatusDisputed, models.PaymentStatusDisputeHeld, reason, gigID)
	return err
}

func (r *GigRepo) MarkCancelledTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE gigs SET status = $1, payment_status = $2, cancelled_at = now(), updated_at = now()
		WHERE id = $3
	`, models.GigStatusCancelled, models.PaymentStatusRefunded, gigID)
	return err
}

// ListAutoReleasable returns delivered, undisputed gigs whose review window
// has expired, oldest first, bounded to limit.
func (r *GigRepo) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]*models.Gig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+gigColumns+` FROM gigs
		WHERE status = $1 AND payment_status = $2 AND dispute_reason IS NULL
			AND auto_release_at IS NOT NULL AND auto_release_at < $3
		ORDER BY auto_release_at ASC
		LIMIT $4
	`, models.GigStatusDelivered, models.PaymentStatusHeld, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Gig
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func (r *GigRepo) ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Gig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+gigColumns+` FROM gigs WHERE poster_id = $1 ORDER BY created_at DESC
	`, posterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Gig
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}
