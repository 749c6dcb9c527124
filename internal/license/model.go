// Package license owns the License record and its persistence. A license
// is a plan grant bound 1:1 to a machine fingerprint; the unique index on
// the fingerprint is the backstop for every binding invariant.
package license

import (
	"encoding/json"
	"time"
)

// License is a plan grant bound to one machine fingerprint
type License struct {
	ID        string `json:"id"`
	LicenseID string `json:"license_id"`

	MachineFingerprint    string          `json:"machine_fingerprint"`
	FingerprintShort      string          `json:"fingerprint_short"`
	FingerprintStability  int             `json:"fingerprint_stability"`
	FingerprintComponents json.RawMessage `json:"-"`

	MACAddress  string `json:"mac_address"`
	MachineID   string `json:"machine_id"`
	MachineName string `json:"machine_name"`

	PlanType  PlanType `json:"plan_type"`
	PlanName  string   `json:"plan_name"`
	PlanPrice string   `json:"plan_price"`

	ActivatedAt time.Time `json:"activated_at"`
	ExpiryDate  time.Time `json:"expiry_date"`

	// IsActive is independent of expiry: a license can be expired yet
	// still flagged active until an explicit deactivation.
	IsActive bool `json:"is_active"`

	// Binding audit. LastVerifiedFingerprint is the proof-of-presence
	// heartbeat; FingerprintMismatchCount is dormant (no read path
	// increments it).
	LastVerifiedFingerprint  *time.Time `json:"-"`
	FingerprintMismatchCount int        `json:"-"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	UpgradedAt *time.Time `json:"upgraded_at"`
}

// IsValid reports whether the license is both flagged active and unexpired
func (l *License) IsValid(now time.Time) bool {
	return l.IsActive && l.ExpiryDate.After(now)
}

// DaysRemaining returns the number of whole days until expiry, floored at zero
func (l *License) DaysRemaining(now time.Time) int {
	if !l.ExpiryDate.After(now) {
		return 0
	}
	return int(l.ExpiryDate.Sub(now).Hours() / 24)
}
