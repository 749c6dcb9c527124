package otp

import "context"

// Repository is the persistence contract for passcodes. Implementations
// return store.ErrNotFound for missing rows and store.ErrConflict when
// the unique email index rejects a write.
type Repository interface {
	// InTx runs fn against a transactional view of the repository
	InTx(ctx context.Context, fn func(r Repository) error) error

	// GetPendingByEmail returns the unverified row for an email.
	// Verified rows are invisible to this lookup.
	GetPendingByEmail(ctx context.Context, email string) (*OTP, error)

	// Create inserts a new passcode row
	Create(ctx context.Context, o *OTP) error

	// Update persists attempt and verification state
	Update(ctx context.Context, o *OTP) error

	// DeleteByEmail removes any row for an email, verified or not.
	// Deleting a missing row is not an error.
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteByID removes a single row by primary key
	DeleteByID(ctx context.Context, id string) error
}
