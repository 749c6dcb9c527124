package otp

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// NewCode returns a numeric passcode of the given length drawn from a
// cryptographically secure source. Leading zeros are allowed, so every
// code is exactly length digits.
func NewCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
