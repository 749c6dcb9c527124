package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodecRequiresMasterKey(t *testing.T) {
	_, err := NewCodec("")
	assert.ErrorIs(t, err, ErrMasterKeyMissing)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("master-secret")
	k2 := DeriveKey("master-secret")
	k3 := DeriveKey("other-secret")

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-master-key")
	require.NoError(t, err)

	payload := map[string]any{
		"license_id":        "LIC-1234ABCD5678",
		"plan_type":         "monthly",
		"plan_name":         "Pro",
		"expiry_date":       "2026-09-28T12:00:00Z",
		"fingerprint_short": "abcdef0123456789",
	}

	token, err := codec.Encrypt(payload)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// URL-safe: must decode without padding characters
	_, err = base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	got, err := codec.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEncryptProducesFreshTokens(t *testing.T) {
	codec, err := NewCodec("test-master-key")
	require.NoError(t, err)

	payload := map[string]any{"license_id": "LIC-1"}

	t1, err := codec.Encrypt(payload)
	require.NoError(t, err)
	t2, err := codec.Encrypt(payload)
	require.NoError(t, err)

	// random nonce: identical payloads never produce identical tokens
	assert.NotEqual(t, t1, t2)
}

func TestDecryptRejectsTamperedToken(t *testing.T) {
	codec, err := NewCodec("test-master-key")
	require.NoError(t, err)

	token, err := codec.Encrypt(map[string]any{"license_id": "LIC-1"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	// flip one byte anywhere past the version prefix
	for i := 1; i < len(raw); i++ {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := codec.Decrypt(base64.RawURLEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "flipped byte %d must fail", i)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc, err := NewCodec("key-one")
	require.NoError(t, err)
	dec, err := NewCodec("key-two")
	require.NoError(t, err)

	token, err := enc.Encrypt(map[string]any{"license_id": "LIC-1"})
	require.NoError(t, err)

	_, err = dec.Decrypt(token)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("test-master-key")
	require.NoError(t, err)

	for _, token := range []string{"", "!!!not-base64!!!", "c2hvcnQ"} {
		_, err := codec.Decrypt(token)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	}
}
