// Package crypto implements the license payload codec. A symmetric key is
// derived once from the server master secret; payloads are serialized to
// JSON and sealed with AES-256-GCM into URL-safe opaque tokens that a
// client can cache and replay offline.
//
// The salt is fixed and shared with offline verifiers: any party holding
// the master secret must derive the identical key without a handshake.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// fixedSalt must match the desktop verifier's key derivation
	fixedSalt = "biolic_license_system_salt_v1"

	// kdfIterations is the PBKDF2 iteration count
	kdfIterations = 100_000

	// keyLen is the AES-256 key size in bytes
	keyLen = 32

	// nonceSize is the 96-bit GCM nonce size
	nonceSize = 12

	// tokenVersion prefixes every token for future format changes
	tokenVersion = 1
)

var (
	// ErrMasterKeyMissing indicates a configuration error at construction
	ErrMasterKeyMissing = errors.New("license master key is not configured")

	// ErrEncryptionFailed is the only error Encrypt returns to callers
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed is the only error Decrypt returns to callers.
	// It deliberately does not distinguish tampering from a wrong key
	// from a malformed token.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Codec encrypts and decrypts license payloads with a key derived from
// the master secret at construction time.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the symmetric key and prepares the AEAD. A missing
// master key is a fatal configuration error, not a request error.
func NewCodec(masterKey string) (*Codec, error) {
	if masterKey == "" {
		return nil, ErrMasterKeyMissing
	}

	key := DeriveKey(masterKey)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionFailed
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryptionFailed
	}

	return &Codec{aead: aead}, nil
}

// DeriveKey runs the slow key derivation over the master secret and the
// fixed salt. Deterministic: equal secrets yield equal keys.
func DeriveKey(masterKey string) []byte {
	return pbkdf2.Key([]byte(masterKey), []byte(fixedSalt), kdfIterations, keyLen, sha256.New)
}

// Encrypt serializes the payload to JSON and seals it into an opaque
// URL-safe token. Any internal failure collapses to ErrEncryptionFailed.
func (c *Codec) Encrypt(payload map[string]any) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)

	token := make([]byte, 0, 1+nonceSize+len(sealed))
	token = append(token, tokenVersion)
	token = append(token, nonce...)
	token = append(token, sealed...)

	return base64.RawURLEncoding.EncodeToString(token), nil
}

// Decrypt reverses Encrypt. The codec carries no embedded expiry;
// freshness is the caller's business via the expiry_date field inside
// the decrypted payload.
func (c *Codec) Decrypt(token string) (map[string]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	if raw[0] != tokenVersion {
		return nil, ErrDecryptionFailed
	}

	nonce := raw[1 : 1+nonceSize]
	sealed := raw[1+nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, ErrDecryptionFailed
	}

	return payload, nil
}
