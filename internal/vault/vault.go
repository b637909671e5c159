// Package vault provides AEAD encryption for stored upstream-key secrets
// and the constant-time comparisons used for bearer-token checks.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext covers truncated ciphertext, a reused/garbled nonce,
// or a failed MAC check — the three failure modes spec.md collapses into
// one client-visible error kind.
var ErrInvalidCiphertext = errors.New("invalid_ciphertext")

// ErrInvalidKeyMaterial is returned by ParseKey when configuration key
// material can't be decoded into exactly 32 bytes.
var ErrInvalidKeyMaterial = errors.New("config_error: key material must be base64, hex, or 32 raw bytes")

// Vault encrypts and decrypts upstream API secrets with XChaCha20-Poly1305.
// The larger (24-byte) nonce of XChaCha20 over AES-GCM's 12 bytes removes
// any practical concern about nonce collision for a key that lives for the
// process lifetime and encrypts an unbounded number of secrets.
type Vault struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
}

// New builds a Vault from 32 bytes of key material.
func New(key []byte) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// ParseKey accepts key material from configuration in base64 (standard or
// raw-url), hex, or raw 32-byte form, trying each in turn, and fails fast
// if none decode to exactly 32 bytes.
func ParseKey(material string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(material); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(material); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := hex.DecodeString(material); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if len(material) == chacha20poly1305.KeySize {
		return []byte(material), nil
	}
	return nil, ErrInvalidKeyMaterial
}

// Encrypt seals plaintext with a fresh random nonce, bundling the nonce as
// a ciphertext prefix. Never returns the same ciphertext twice for the same
// input.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generating nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure — truncation,
// nonce corruption, or a bad MAC — surfaces as ErrInvalidCiphertext so
// callers never need to distinguish the cause.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize+v.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// SHA256 hashes bytes with the standard 32-byte digest, used for client
// token secrets and query-preview HMAC keys.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqual compares two strings without leaking timing
// information, as required for admin-token and client-token comparisons.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a constant-time compare against a same-length dummy so
		// callers measuring timing can't distinguish "wrong length" either.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
