package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

// ErrInsufficientBalance is returned when a wallet debit would overdraw.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, name, phone, password_hash, wallet_balance, rating, rating_count,
	jobs_completed, total_earned, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.WalletBalance,
		&u.Rating, &u.RatingCount, &u.JobsCompleted, &u.TotalEarned, &u.IsAdmin,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, phone, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.Name, u.Phone, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// JobsCompleted returns the completed-job count used for the fee tier lookup.
func (r *UserRepo) JobsCompleted(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT jobs_completed FROM users WHERE id = $1`, id).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CreditWalletTx adds amount to a user's wallet balance inside the settlement
// transaction.
func (r *UserRepo) CreditWalletTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = now() WHERE id = $2
	`, amount, id)
	return err
}

// DebitWallet atomically deducts amount, guarded against overdraw.
func (r *UserRepo) DebitWallet(ctx context.Context, id uuid.UUID, amount int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance - $1, updated_at = now()
		WHERE id = $2 AND wallet_balance >= $1
	`, amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *UserRepo) CreditWallet(ctx context.Context, id uuid.UUID, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = now() WHERE id = $2
	`, amount, id)
	return err
}

// ApplyCompletionStats bumps jobs_completed and total_earned after a release.
func (r *UserRepo) ApplyCompletionStats(ctx context.Context, id uuid.UUID, earned int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET jobs_completed = jobs_completed + 1, total_earned = total_earned + $1, updated_at = now()
		WHERE id = $2
	`, earned, id)
	return err
}

// ApplyRating folds a 1-5 score into the weighted running average.
func (r *UserRepo) ApplyRating(ctx context.Context, id uuid.UUID, score int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET rating = (rating * rating_count + $1) / (rating_count + 1),
			rating_count = rating_count + 1, updated_at = now()
		WHERE id = $2
	`, score, id)
	return err
}
