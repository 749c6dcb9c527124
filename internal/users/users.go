// Package users is the read-only collaborator for account lookups.
// The license server never writes this table; it only needs to know
// whether a requesting account exists and is active.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/serkayon/biolic/internal/store"
)

// User is the slice of the account record the license server reads
type User struct {
	ID         string
	Name       string
	Email      string
	IsActive   bool
	IsVerified bool
	CreatedAt  time.Time
}

// Repository looks up accounts
type Repository interface {
	// GetByID returns a user by primary key, store.ErrNotFound if absent
	GetByID(ctx context.Context, id string) (*User, error)
}

// PostgresRepository reads accounts from PostgreSQL
type PostgresRepository struct {
	db store.DBTX
}

// NewPostgresRepository creates a user repository over a database handle
func NewPostgresRepository(db store.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, name, email, is_active, is_verified, created_at
		FROM users WHERE id = $1`

	var u User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.IsActive, &u.IsVerified, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// MemoryRepository is an in-process account store used by the memory
// driver and by tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*User
}

// NewMemoryRepository creates an empty in-memory user repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*User)}
}

// Put stores or replaces a user record
func (r *MemoryRepository) Put(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
