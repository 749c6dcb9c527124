package license

import (
	"context"
	"sync"

	"github.com/serkayon/biolic/internal/store"
)

// MemoryRepository is an in-process license store used by the memory
// driver and by tests. It enforces the same uniqueness backstops as the
// PostgreSQL schema.
type MemoryRepository struct {
	mu            sync.Mutex
	byFingerprint map[string]*License
	byLicenseID   map[string]string
}

// NewMemoryRepository creates an empty in-memory license repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byFingerprint: make(map[string]*License),
		byLicenseID:   make(map[string]string),
	}
}

// InTx serializes fn under the repository lock. The view passed to fn
// shares state with the repository, so writes are immediately visible
// to subsequent reads inside fn. Unlike the SQL driver there is no
// rollback: a write that already happened stays even when fn returns
// an error. Callers must validate before writing, which every service
// path does.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(tr Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&memTxView{r})
}

func (r *MemoryRepository) GetByFingerprint(ctx context.Context, fp string) (*License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getByFingerprint(fp)
}

func (r *MemoryRepository) GetByLicenseID(ctx context.Context, licenseID string) (*License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getByLicenseID(licenseID)
}

func (r *MemoryRepository) GetActiveByMAC(ctx context.Context, mac string) (*License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getActiveByMAC(mac)
}

func (r *MemoryRepository) Create(ctx context.Context, l *License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(l)
}

func (r *MemoryRepository) Update(ctx context.Context, l *License) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(l)
}

func (r *MemoryRepository) getByFingerprint(fp string) (*License, error) {
	l, ok := r.byFingerprint[fp]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(l), nil
}

func (r *MemoryRepository) getByLicenseID(licenseID string) (*License, error) {
	fp, ok := r.byLicenseID[licenseID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(r.byFingerprint[fp]), nil
}

func (r *MemoryRepository) getActiveByMAC(mac string) (*License, error) {
	var newest *License
	for _, l := range r.byFingerprint {
		if l.MACAddress != mac || !l.IsActive {
			continue
		}
		if newest == nil || l.CreatedAt.After(newest.CreatedAt) {
			newest = l
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	return clone(newest), nil
}

func (r *MemoryRepository) create(l *License) error {
	if _, exists := r.byFingerprint[l.MachineFingerprint]; exists {
		return store.ErrConflict
	}
	if _, exists := r.byLicenseID[l.LicenseID]; exists {
		return store.ErrConflict
	}
	r.byFingerprint[l.MachineFingerprint] = clone(l)
	r.byLicenseID[l.LicenseID] = l.MachineFingerprint
	return nil
}

func (r *MemoryRepository) update(l *License) error {
	fp, ok := r.byLicenseID[l.LicenseID]
	if !ok {
		return store.ErrNotFound
	}
	r.byFingerprint[fp] = clone(l)
	return nil
}

// memTxView exposes repository methods without re-acquiring the lock
// already held by InTx.
type memTxView struct {
	r *MemoryRepository
}

func (v *memTxView) InTx(ctx context.Context, fn func(tr Repository) error) error {
	return fn(v)
}

func (v *memTxView) GetByFingerprint(ctx context.Context, fp string) (*License, error) {
	return v.r.getByFingerprint(fp)
}

func (v *memTxView) GetByLicenseID(ctx context.Context, licenseID string) (*License, error) {
	return v.r.getByLicenseID(licenseID)
}

func (v *memTxView) GetActiveByMAC(ctx context.Context, mac string) (*License, error) {
	return v.r.getActiveByMAC(mac)
}

func (v *memTxView) Create(ctx context.Context, l *License) error {
	return v.r.create(l)
}

func (v *memTxView) Update(ctx context.Context, l *License) error {
	return v.r.update(l)
}

func clone(l *License) *License {
	cp := *l
	if l.FingerprintComponents != nil {
		cp.FingerprintComponents = append([]byte(nil), l.FingerprintComponents...)
	}
	if l.LastVerifiedFingerprint != nil {
		t := *l.LastVerifiedFingerprint
		cp.LastVerifiedFingerprint = &t
	}
	if l.UpgradedAt != nil {
		t := *l.UpgradedAt
		cp.UpgradedAt = &t
	}
	return &cp
}
