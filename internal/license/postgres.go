package license

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/serkayon/biolic/internal/store"
)

const licenseColumns = `id, license_id, machine_fingerprint, fingerprint_short,
	fingerprint_stability, fingerprint_components, mac_address, machine_id,
	machine_name, plan_type, plan_name, plan_price, activated_at, expiry_date,
	is_active, last_verified_fingerprint, fingerprint_mismatch_count,
	created_at, updated_at, upgraded_at`

// PostgresRepository persists licenses in PostgreSQL
type PostgresRepository struct {
	db   store.DBTX
	root *sql.DB
}

// NewPostgresRepository creates a license repository over a database handle
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, root: db}
}

// InTx runs fn with a repository bound to a single transaction
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tr Repository) error) error {
	if r.root == nil {
		// already transactional, reuse the bound handle
		return fn(r)
	}
	return store.WithTx(ctx, r.root, func(ctx context.Context, tx store.DBTX) error {
		return fn(&PostgresRepository{db: tx})
	})
}

func (r *PostgresRepository) GetByFingerprint(ctx context.Context, fp string) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE machine_fingerprint = $1`, licenseColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, fp))
}

func (r *PostgresRepository) GetByLicenseID(ctx context.Context, licenseID string) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE license_id = $1`, licenseColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, licenseID))
}

func (r *PostgresRepository) GetActiveByMAC(ctx context.Context, mac string) (*License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses
		WHERE mac_address = $1 AND is_active = TRUE
		ORDER BY created_at DESC LIMIT 1`, licenseColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, mac))
}

func (r *PostgresRepository) Create(ctx context.Context, l *License) error {
	query := `INSERT INTO licenses (
		id, license_id, machine_fingerprint, fingerprint_short,
		fingerprint_stability, fingerprint_components, mac_address, machine_id,
		machine_name, plan_type, plan_name, plan_price, activated_at,
		expiry_date, is_active, last_verified_fingerprint,
		fingerprint_mismatch_count, created_at, updated_at, upgraded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.LicenseID, l.MachineFingerprint, l.FingerprintShort,
		l.FingerprintStability, nullBytes(l.FingerprintComponents), l.MACAddress,
		l.MachineID, l.MachineName, string(l.PlanType), l.PlanName, l.PlanPrice,
		l.ActivatedAt, l.ExpiryDate, l.IsActive, l.LastVerifiedFingerprint,
		l.FingerprintMismatchCount, l.CreatedAt, l.UpdatedAt, l.UpgradedAt,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, l *License) error {
	query := `UPDATE licenses SET
		plan_type = $1, plan_name = $2, plan_price = $3, activated_at = $4,
		expiry_date = $5, is_active = $6, last_verified_fingerprint = $7,
		fingerprint_mismatch_count = $8, fingerprint_stability = $9,
		fingerprint_components = $10, updated_at = $11, upgraded_at = $12,
		mac_address = $13, machine_id = $14, machine_name = $15
	WHERE license_id = $16`

	res, err := r.db.ExecContext(ctx, query,
		string(l.PlanType), l.PlanName, l.PlanPrice, l.ActivatedAt,
		l.ExpiryDate, l.IsActive, l.LastVerifiedFingerprint,
		l.FingerprintMismatchCount, l.FingerprintStability,
		nullBytes(l.FingerprintComponents), l.UpdatedAt, l.UpgradedAt,
		l.MACAddress, l.MachineID, l.MachineName, l.LicenseID,
	)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
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

func (r *PostgresRepository) scanOne(row *sql.Row) (*License, error) {
	var (
		l          License
		components []byte
		planPrice  sql.NullString
		shortFP    sql.NullString
		mac        sql.NullString
		machineID  sql.NullString
		name       sql.NullString
	)

	err := row.Scan(
		&l.ID, &l.LicenseID, &l.MachineFingerprint, &shortFP,
		&l.FingerprintStability, &components, &mac, &machineID,
		&name, &l.PlanType, &l.PlanName, &planPrice, &l.ActivatedAt,
		&l.ExpiryDate, &l.IsActive, &l.LastVerifiedFingerprint,
		&l.FingerprintMismatchCount, &l.CreatedAt, &l.UpdatedAt, &l.UpgradedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan license: %w", err)
	}

	l.FingerprintShort = shortFP.String
	l.PlanPrice = planPrice.String
	l.MACAddress = mac.String
	l.MachineID = machineID.String
	l.MachineName = name.String
	l.FingerprintComponents = components
	return &l, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
