package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/serkayon/biolic/internal/store"
)

// PostgresRepository persists passcodes in PostgreSQL
type PostgresRepository struct {
	db   store.DBTX
	root *sql.DB
}

// NewPostgresRepository creates a passcode repository over a database handle
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, root: db}
}

// InTx runs fn with a repository bound to a single transaction
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tr Repository) error) error {
	if r.root == nil {
		return fn(r)
	}
	return store.WithTx(ctx, r.root, func(ctx context.Context, tx store.DBTX) error {
		return fn(&PostgresRepository{db: tx})
	})
}

func (r *PostgresRepository) GetPendingByEmail(ctx context.Context, email string) (*OTP, error) {
	query := `SELECT id, email, otp_code, is_verified, failed_attempts, created_at, expires_at
		FROM otps WHERE email = $1 AND is_verified = FALSE`

	var o OTP
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&o.ID, &o.Email, &o.Code, &o.IsVerified, &o.FailedAttempts,
		&o.CreatedAt, &o.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan otp: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, o *OTP) error {
	query := `INSERT INTO otps (id, email, otp_code, is_verified, failed_attempts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.Email, o.Code, o.IsVerified, o.FailedAttempts, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("create otp: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, o *OTP) error {
	query := `UPDATE otps SET is_verified = $1, failed_attempts = $2 WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, o.IsVerified, o.FailedAttempts, o.ID)
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
