package otp

import (
	"context"
	"sync"

	"github.com/serkayon/biolic/internal/store"
)

// MemoryRepository is an in-process passcode store used by the memory
// driver and by tests.
type MemoryRepository struct {
	mu      sync.Mutex
	byEmail map[string]*OTP
}

// NewMemoryRepository creates an empty in-memory passcode repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: make(map[string]*OTP)}
}

// InTx serializes fn under the repository lock. Writes are applied
// immediately with no rollback on fn error; callers validate before
// writing.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tr Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&memTxView{r})
}

func (r *MemoryRepository) GetPendingByEmail(ctx context.Context, email string) (*OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getPendingByEmail(email)
}

func (r *MemoryRepository) Create(ctx context.Context, o *OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(o)
}

func (r *MemoryRepository) Update(ctx context.Context, o *OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(o)
}

func (r *MemoryRepository) DeleteByEmail(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteByEmail(email)
}

func (r *MemoryRepository) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteByID(id)
}

func (r *MemoryRepository) getPendingByEmail(email string) (*OTP, error) {
	o, ok := r.byEmail[email]
	if !ok || o.IsVerified {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) create(o *OTP) error {
	if _, exists := r.byEmail[o.Email]; exists {
		return store.ErrConflict
	}
	cp := *o
	r.byEmail[o.Email] = &cp
	return nil
}

func (r *MemoryRepository) update(o *OTP) error {
	cur, ok := r.byEmail[o.Email]
	if !ok || cur.ID != o.ID {
		return store.ErrNotFound
	}
	cp := *o
	r.byEmail[o.Email] = &cp
	return nil
}

func (r *MemoryRepository) deleteByEmail(email string) error {
	delete(r.byEmail, email)
	return nil
}

func (r *MemoryRepository) deleteByID(id string) error {
	for email, o := range r.byEmail {
		if o.ID == id {
			delete(r.byEmail, email)
			return nil
		}
	}
	return nil
}

type memTxView struct {
	r *MemoryRepository
}

func (v *memTxView) InTx(ctx context.Context, fn func(tr Repository) error) error {
	return fn(v)
}

func (v *memTxView) GetPendingByEmail(ctx context.Context, email string) (*OTP, error) {
	return v.r.getPendingByEmail(email)
}

func (v *memTxView) Create(ctx context.Context, o *OTP) error {
	return v.r.create(o)
}

func (v *memTxView) Update(ctx context.Context, o *OTP) error {
	return v.r.update(o)
}

func (v *memTxView) DeleteByEmail(ctx context.Context, email string) error {
	return v.r.deleteByEmail(email)
}

func (v *memTxView) DeleteByID(ctx context.Context, id string) error {
	return v.r.deleteByID(id)
}
