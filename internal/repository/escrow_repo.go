package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, gig_id, poster_id, worker_id, original_amount, security_deposit,
	platform_fee, gateway_fee, amount_held, net_amount, status, release_condition,
	release_date, handshake_hash, released_at, created_at`

func scanEscrow(row pgx.Row) (*models.EscrowRecord, error) {
	var e models.EscrowRecord
	err := row.Scan(&e.ID, &e.GigID, &e.PosterID, &e.WorkerID, &e.OriginalAmount,
		&e.SecurityDeposit, &e.PlatformFee, &e.GatewayFee, &e.AmountHeld, &e.NetAmount,
		&e.Status, &e.ReleaseCondition, &e.ReleaseDate, &e.HandshakeHash, &e.ReleasedAt,
		&e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.EscrowRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_records (id, gig_id, poster_id, worker_id, original_amount, security_deposit,
			platform_fee, gateway_fee, amount_held, net_amount, status, release_condition, release_date, handshake_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, e.ID, e.GigID, e.PosterID, e.WorkerID, e.OriginalAmount, e.SecurityDeposit,
		e.PlatformFee, e.GatewayFee, e.AmountHeld, e.NetAmount, e.Status, e.ReleaseCondition,
		e.ReleaseDate, e.HandshakeHash).Scan(&e.CreatedAt)
}

func (r *EscrowRepo) GetByGigID(ctx context.Context, gigID uuid.UUID) (*models.EscrowRecord, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_records WHERE gig_id = $1
	`, gigID))
}

// TransitionTx is the compare-and-swap every release trigger goes through.
// It moves the record from one status to another only if it is still in the
// expected status; zero rows affected means another trigger already won and
// the caller must abort without writing anything else.
func (r *EscrowRepo) TransitionTx(ctx context.Context, tx pgx.Tx, gigID uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_records
		SET status = $1,
			released_at = CASE WHEN $1 = ANY(ARRAY['RELEASED','REFUNDED','CANCELLED']) THEN now() ELSE released_at END
		WHERE gig_id = $2 AND status = $3
	`, to, gigID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
