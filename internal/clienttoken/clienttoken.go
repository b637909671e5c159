// Package clienttoken implements the bearer-token format clients present
// to the bridge: a public prefix and a secret, of which only a hash is
// ever stored.
package clienttoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/vault"
)

// ErrMalformed is returned when a presented token does not have the
// <prefix>.<secret> shape.
var ErrMalformed = errors.New("malformed_token")

const (
	prefixBytes = 8
	secretBytes = 24
)

// Token is the full bearer credential, shown to the admin exactly once at
// creation time.
type Token struct {
	Prefix string
	Secret string
}

// String renders the token in its wire format.
func (t Token) String() string {
	return t.Prefix + "." + t.Secret
}

// Generate creates a new random token with independent prefix and secret
// components.
func Generate() (Token, error) {
	prefix, err := randomHex(prefixBytes)
	if err != nil {
		return Token{}, fmt.Errorf("clienttoken: generating prefix: %w", err)
	}
	secret, err := randomHex(secretBytes)
	if err != nil {
		return Token{}, fmt.Errorf("clienttoken: generating secret: %w", err)
	}
	return Token{Prefix: prefix, Secret: secret}, nil
}

// Parse splits a presented bearer value into prefix and secret.
func Parse(presented string) (Token, error) {
	idx := strings.IndexByte(presented, '.')
	if idx <= 0 || idx == len(presented)-1 {
		return Token{}, ErrMalformed
	}
	return Token{Prefix: presented[:idx], Secret: presented[idx+1:]}, nil
}

// SecretHash returns the stored hash of a token's secret half.
func SecretHash(secret string) [32]byte {
	return vault.SHA256([]byte(secret))
}

// Record is the persisted shape of a client token (everything but the
// plaintext secret, which is never stored).
type Record struct {
	ID           string
	Description  string
	Prefix       string
	SecretHash   [32]byte
	ExpiresAt    *time.Time
	RevokedAt    *time.Time
	AllowedTools []string
	RateLimit    *int
	CreatedAt    time.Time
}

// Verify checks a presented secret against the stored record: the hash
// must match in constant time, the token must not be revoked, and any
// expiry must be in the future.
func (r *Record) Verify(presentedSecret string, now time.Time) bool {
	got := SecretHash(presentedSecret)
	if !constantTimeEqualHash(got, r.SecretHash) {
		return false
	}
	return r.IsValid(now)
}

// IsValid reports whether the record itself (independent of any secret
// check) is still usable: not revoked, and not expired.
func (r *Record) IsValid(now time.Time) bool {
	if r.RevokedAt != nil {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// AllowsTool reports whether the token's allow-list (if any) permits
// calling toolName. An empty AllowedTools list means "all tools allowed."
func (r *Record) AllowsTool(toolName string) bool {
	if len(r.AllowedTools) == 0 {
		return true
	}
	for _, t := range r.AllowedTools {
		if t == toolName {
			return true
		}
	}
	return false
}

func constantTimeEqualHash(a, b [32]byte) bool {
	return vault.ConstantTimeEqual(hex.EncodeToString(a[:]), hex.EncodeToString(b[:]))
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
