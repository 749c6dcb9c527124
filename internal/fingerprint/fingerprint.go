// Package fingerprint normalizes and validates client-supplied machine
// fingerprints. A fingerprint is a client-computed 64-character hash that
// binds a license to one machine; the server never generates one itself.
package fingerprint

import (
	"errors"
	"strings"
)

// Length is the required fingerprint length in characters
const Length = 64

// ShortLength is the length of the display truncation
const ShortLength = 16

// ErrInvalidFingerprint is returned for fingerprints of the wrong length
var ErrInvalidFingerprint = errors.New("invalid fingerprint format")

// Normalize trims whitespace and lowercases a raw fingerprint
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Validate reports whether the fingerprint has the required 64-character form
func Validate(fp string) error {
	if len(fp) != Length {
		return ErrInvalidFingerprint
	}
	return nil
}

// Short derives the display truncation of a fingerprint. Fingerprints
// shorter than the truncation are returned unchanged.
func Short(fp string) string {
	if len(fp) <= ShortLength {
		return fp
	}
	return fp[:ShortLength]
}
