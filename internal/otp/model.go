// Package otp owns the one-time passcode records used for email
// verification. One row per email at a time; a verified row is a
// consumed receipt and is never returned by pending lookups.
package otp

import (
	"strings"
	"time"
)

// OTP is a single outstanding (or consumed) passcode for an email
type OTP struct {
	ID             string
	Email          string
	Code           string
	IsVerified     bool
	FailedAttempts int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired reports whether the passcode window has closed
func (o *OTP) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// NormalizeEmail canonicalizes an email address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
