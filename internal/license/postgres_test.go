package license

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkayon/biolic/internal/store"
)

var licenseRows = []string{
	"id", "license_id", "machine_fingerprint", "fingerprint_short",
	"fingerprint_stability", "fingerprint_components", "mac_address",
	"machine_id", "machine_name", "plan_type", "plan_name", "plan_price",
	"activated_at", "expiry_date", "is_active", "last_verified_fingerprint",
	"fingerprint_mismatch_count", "created_at", "updated_at", "upgraded_at",
}

func mockRow(l *License) *sqlmock.Rows {
	return sqlmock.NewRows(licenseRows).AddRow(
		l.ID, l.LicenseID, l.MachineFingerprint, l.FingerprintShort,
		l.FingerprintStability, []byte(l.FingerprintComponents), l.MACAddress,
		l.MachineID, l.MachineName, string(l.PlanType), l.PlanName, l.PlanPrice,
		l.ActivatedAt, l.ExpiryDate, l.IsActive, l.LastVerifiedFingerprint,
		l.FingerprintMismatchCount, l.CreatedAt, l.UpdatedAt, l.UpgradedAt,
	)
}

func TestPostgresGetByFingerprint(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	fp := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	want := testLicense(fp)

	mock.ExpectQuery(`SELECT (.+) FROM licenses WHERE machine_fingerprint = \$1`).
		WithArgs(fp).
		WillReturnRows(mockRow(want))

	repo := NewPostgresRepository(db)
	got, err := repo.GetByFingerprint(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, want.LicenseID, got.LicenseID)
	assert.Equal(t, want.PlanType, got.PlanType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByLicenseIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM licenses WHERE license_id = \$1`).
		WithArgs("LIC-DEADBEEF0000").
		WillReturnRows(sqlmock.NewRows(licenseRows))

	repo := NewPostgresRepository(db)
	_, err = repo.GetByLicenseID(context.Background(), "LIC-DEADBEEF0000")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	l := testLicense("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	mock.ExpectExec(`INSERT INTO licenses`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Create(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateCarriesUpgradeAuditFields(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	l := testLicense("9999999999999999999999999999999999999999999999999999999999999999")
	l.PlanType = PlanMonthly
	l.FingerprintStability = 87
	l.FingerprintComponents = []byte(`{"cpu":"abc","disk":"def"}`)
	l.UpgradedAt = &l.UpdatedAt

	// an upgrade rewrites the stability score and components blob, so
	// both columns must be part of the statement and its arguments
	mock.ExpectExec(`(?s)UPDATE licenses SET.*fingerprint_stability = \$9.*fingerprint_components = \$10`).
		WithArgs(
			string(l.PlanType), l.PlanName, l.PlanPrice, l.ActivatedAt,
			l.ExpiryDate, l.IsActive, l.LastVerifiedFingerprint,
			l.FingerprintMismatchCount, l.FingerprintStability,
			[]byte(l.FingerprintComponents), l.UpdatedAt, l.UpgradedAt,
			l.MACAddress, l.MachineID, l.MachineName, l.LicenseID,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Update(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	l := testLicense("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")

	mock.ExpectExec(`UPDATE licenses SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepository(db)
	err = repo.Update(context.Background(), l)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	l := testLicense("dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO licenses`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresRepository(db)
	err = repo.InTx(context.Background(), func(tr Repository) error {
		return tr.Create(context.Background(), l)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM licenses WHERE machine_fingerprint = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(licenseRows))
	mock.ExpectRollback()

	repo := NewPostgresRepository(db)
	err = repo.InTx(context.Background(), func(tr Repository) error {
		_, err := tr.GetByFingerprint(context.Background(), "missing")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	l := testLicense("eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	mock.ExpectExec(`INSERT INTO licenses`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	repo := NewPostgresRepository(db)
	err = repo.Create(context.Background(), l)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
