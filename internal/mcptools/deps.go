package mcptools

import (
	"context"
	"errors"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/dispatch"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
	"github.com/searchbridge/mcp-gateway/internal/upstream/brave"
	"github.com/searchbridge/mcp-gateway/internal/upstream/tavily"
)

// Decrypter is the narrow seam handlers use to recover an upstream key's
// plaintext secret; satisfied by *vault.Vault.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SourceModeResolver resolves the currently configured search source mode;
// satisfied by the settings cache's dispatch-mode adapter.
type SourceModeResolver func(ctx context.Context) dispatch.Mode

// Deps wires every handler to its upstream clients, key pools, and the
// Brave rate gate. One Deps is shared by all registered tool handlers.
type Deps struct {
	TavilyPool *keypool.Pool
	BravePool  *keypool.Pool

	Vault Decrypter

	Tavily *tavily.Client
	Brave  *brave.Client

	BraveGate        *rategate.Gate
	BraveGateMaxWait func() time.Duration

	SourceMode SourceModeResolver

	// MaxRetries bounds how many additional keys withKey tries after the
	// first, when the upstream call fails with an outcome that indicates
	// the key itself (not the query) was the problem. Zero means no
	// retries: one key, one attempt.
	MaxRetries int
}

// withKey selects an active key from pool, decrypts its secret, invokes
// fn, and records the resulting outcome against the pool. On an
// auth_failed or rate_limited outcome it retries on a fresh key, up to
// deps.MaxRetries additional attempts. RecordOutcome has already moved a
// failed P-A key to cooldown or invalid, and an auth-failed P-B key to
// invalid, by the time SelectActive runs again, so the retry lands on a
// different key; a rate-limited P-B key stays active and can be selected
// again. The id of the
// key that produced the final result is recorded onto toolCtx for the
// usage log.
func withKey[T any](ctx context.Context, deps *Deps, pool *keypool.Pool, toolCtx *ToolContext, fn func(secret string) (T, error)) (T, error) {
	var zero T

	attempts := deps.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		key, err := pool.SelectActive(ctx)
		if err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		plaintext, err := deps.Vault.Decrypt(key.Ciphertext)
		if err != nil {
			return zero, err
		}

		result, callErr := fn(string(plaintext))
		outcome := outcomeFor(callErr)
		_ = pool.RecordOutcome(ctx, key.ID, outcome)
		if toolCtx != nil {
			toolCtx.RecordUpstreamKey(key.ID)
		}

		if callErr == nil {
			return result, nil
		}
		lastErr = callErr
		if !isRetryableOutcome(outcome) {
			return zero, callErr
		}
	}
	return zero, lastErr
}

// isRetryableOutcome reports whether a failed call is worth retrying on a
// different key: auth_failed and rate_limited are key-specific failures,
// everything else (provider errors, invalid responses) would fail again
// on any key.
func isRetryableOutcome(o keypool.Outcome) bool {
	return o == keypool.OutcomeAuthFailed || o == keypool.OutcomeRateLimited
}

func outcomeFor(err error) keypool.Outcome {
	if err == nil {
		return keypool.OutcomeSuccess
	}
	var classified *upstream.ClassifiedError
	if errors.As(err, &classified) {
		switch classified.Kind {
		case upstream.KindRateLimited:
			return keypool.OutcomeRateLimited
		case upstream.KindAuthFailed:
			return keypool.OutcomeAuthFailed
		}
	}
	return keypool.OutcomeSuccess
}
