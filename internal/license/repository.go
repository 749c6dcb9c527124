package license

import "context"

// Repository is the persistence contract for licenses. Implementations
// return store.ErrNotFound for missing rows and store.ErrConflict when
// the unique fingerprint index rejects a write.
type Repository interface {
	// InTx runs fn against a transactional view of the repository.
	// Writes are only visible once fn returns nil.
	InTx(ctx context.Context, fn func(r Repository) error) error

	// GetByFingerprint returns the license bound to a fingerprint
	// regardless of active or expiry state. At most one row can exist.
	GetByFingerprint(ctx context.Context, fp string) (*License, error)

	// GetByLicenseID returns a license by its customer-facing identifier
	GetByLicenseID(ctx context.Context, licenseID string) (*License, error)

	// GetActiveByMAC returns the newest active license recorded for a
	// MAC address. Legacy lookup only.
	GetActiveByMAC(ctx context.Context, mac string) (*License, error)

	// Create inserts a new license row
	Create(ctx context.Context, l *License) error

	// Update persists mutable fields of an existing license row
	Update(ctx context.Context, l *License) error
}
