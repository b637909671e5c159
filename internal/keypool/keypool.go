// Package keypool manages the in-memory candidate view and selection
// policy over upstream provider API keys, backed by a persistence layer
// for durable state.
package keypool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/metrics"
)

// Status is the lifecycle state of an upstream key.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusCooldown Status = "cooldown"
	StatusInvalid  Status = "invalid"
)

// Provider distinguishes P-A (Tavily-shaped, with credits) from P-B
// (Brave-shaped, no credit snapshot).
type Provider string

const (
	ProviderTavily Provider = "tavily"
	ProviderBrave  Provider = "brave"
)

// Strategy is the tie-break policy used when more than one key is a
// candidate for selection.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
)

// ErrNoActiveKeys is returned by SelectActive when no key qualifies.
var ErrNoActiveKeys = errors.New("no_active_keys")

// Credits is the credit snapshot carried only by P-A keys.
type Credits struct {
	KeyUsage                  *int64
	KeyLimit                  *int64
	KeyRemaining              *int64
	AccountPlanUsage          *int64
	AccountPlanLimit          *int64
	AccountPayAsYouGoUsage    *int64
	AccountPayAsYouGoLimit    *int64
	AccountRemaining          *int64
	Remaining                 *int64
	CheckedAt                 *time.Time
	ExpiresAt                 *time.Time
}

// ComputeRemaining derives Remaining from KeyRemaining/AccountRemaining
// using null-as-infinity semantics: the minimum of whichever are present,
// or nil if neither is.
func (c *Credits) ComputeRemaining() *int64 {
	switch {
	case c.KeyRemaining != nil && c.AccountRemaining != nil:
		v := *c.KeyRemaining
		if *c.AccountRemaining < v {
			v = *c.AccountRemaining
		}
		return &v
	case c.KeyRemaining != nil:
		v := *c.KeyRemaining
		return &v
	case c.AccountRemaining != nil:
		v := *c.AccountRemaining
		return &v
	default:
		return nil
	}
}

// Key is an upstream provider key. P-B keys simply leave Credits and
// CooldownUntil unused (P-B has no cooldown state, only active/disabled/invalid).
type Key struct {
	ID        string
	Provider  Provider
	Label     string
	Ciphertext []byte
	Masked    string
	Status    Status

	CooldownUntil *time.Time

	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Credits Credits

	RefreshLockUntil *time.Time
	RefreshLockID    string
}

// Outcome classifies an upstream response for RecordOutcome.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeAuthFailed  Outcome = "auth_failed"
)

// Store is the persistence seam the pool reads candidates from and writes
// state transitions through. Implementations live in internal/postgres.
type Store interface {
	ListCandidates(ctx context.Context, provider Provider) ([]*Key, error)
	UpdateStatus(ctx context.Context, keyID string, status Status, cooldownUntil *time.Time) error
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
	AcquireRefreshLease(ctx context.Context, keyID string, leaseID string, lockUntil time.Time) (bool, error)
	ReleaseRefreshLease(ctx context.Context, keyID string, leaseID string) error
	UpdateCredits(ctx context.Context, keyID string, credits Credits) error
	InsertKey(ctx context.Context, key *Key) error
}

// SettingsSource resolves the current selection strategy; satisfied by
// internal/settingscache.
type SettingsSource interface {
	TavilyKeySelectionStrategy(ctx context.Context) Strategy
}

// PreflightResult mirrors spec.md's {ok} | {throttled, retryAfterMs, reason}.
type PreflightResult struct {
	OK           bool
	RetryAfterMs int64
	Reason       string
}

// Pool selects and tracks upstream keys for a single provider.
type Pool struct {
	provider Provider
	store    Store
	settings SettingsSource

	minRemaining int64
	cooldownMs   int64
	refreshLockMs int64

	mu sync.Mutex
}

// New builds a Pool for provider, sourcing its minimum-remaining-credits
// threshold and cooldown duration from configuration.
func New(provider Provider, store Store, settings SettingsSource, minRemaining, cooldownMs, refreshLockMs int64) *Pool {
	return &Pool{
		provider:      provider,
		store:         store,
		settings:      settings,
		minRemaining:  minRemaining,
		cooldownMs:    cooldownMs,
		refreshLockMs: refreshLockMs,
	}
}

// SelectActive picks one candidate key according to the configured
// strategy, lazily treating any key whose cooldown has elapsed as active.
func (p *Pool) SelectActive(ctx context.Context) (*Key, error) {
	keys, err := p.store.ListCandidates(ctx, p.provider)
	if err != nil {
		return nil, fmt.Errorf("keypool: listing candidates: %w", err)
	}

	now := time.Now()
	candidates := make([]*Key, 0, len(keys))
	for _, k := range keys {
		if k.Status != StatusActive && k.Status != StatusCooldown {
			continue
		}
		if k.CooldownUntil != nil && k.CooldownUntil.After(now) {
			continue
		}
		candidates = append(candidates, k)
	}
	if len(candidates) == 0 {
		return nil, ErrNoActiveKeys
	}

	strategy := p.settings.TavilyKeySelectionStrategy(ctx)
	metrics.KeyPoolSelectedTotal.WithLabelValues(string(p.provider), string(strategy)).Inc()
	switch strategy {
	case StrategyRandom:
		idx, err := randomIndex(len(candidates))
		if err != nil {
			return nil, fmt.Errorf("keypool: %w", err)
		}
		return candidates[idx], nil
	default:
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if (a.LastUsedAt == nil) != (b.LastUsedAt == nil) {
				return a.LastUsedAt == nil
			}
			if a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt) {
				return a.LastUsedAt.Before(*b.LastUsedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
		return candidates[0], nil
	}
}

// Preflight reports whether the pool currently has at least one key with
// usable remaining credits, or is within the credit-cache TTL for one.
func (p *Pool) Preflight(ctx context.Context) (PreflightResult, error) {
	keys, err := p.store.ListCandidates(ctx, p.provider)
	if err != nil {
		return PreflightResult{}, fmt.Errorf("keypool: listing candidates: %w", err)
	}

	now := time.Now()
	for _, k := range keys {
		if k.Status != StatusActive && k.Status != StatusCooldown {
			continue
		}
		if k.CooldownUntil != nil && k.CooldownUntil.After(now) {
			continue
		}
		remaining := k.Credits.ComputeRemaining()
		if remaining == nil || *remaining > p.minRemaining {
			return PreflightResult{OK: true}, nil
		}
		if k.Credits.CheckedAt != nil && k.Credits.ExpiresAt != nil && k.Credits.ExpiresAt.After(now) {
			return PreflightResult{OK: true}, nil
		}
	}
	return PreflightResult{OK: false, RetryAfterMs: p.cooldownMs, Reason: "no_key_with_sufficient_credits"}, nil
}

// RecordOutcome applies the cooldown/invalid state transitions for a
// single key's most recent use.
func (p *Pool) RecordOutcome(ctx context.Context, keyID string, outcome Outcome) error {
	now := time.Now()
	if err := p.store.TouchLastUsed(ctx, keyID, now); err != nil {
		// best-effort per the recorded design decision on lastUsedAt
		log.Warn().Err(err).Str("keyId", keyID).Msg("keypool: updating lastUsedAt failed")
	}

	switch outcome {
	case OutcomeRateLimited:
		if p.provider == ProviderBrave {
			// P-B has no cooldown state; the key stays active.
			return nil
		}
		until := now.Add(time.Duration(p.cooldownMs) * time.Millisecond)
		return p.store.UpdateStatus(ctx, keyID, StatusCooldown, &until)
	case OutcomeAuthFailed:
		return p.store.UpdateStatus(ctx, keyID, StatusInvalid, nil)
	default:
		return nil
	}
}

// AcquireRefreshLease attempts to take the exclusive refresh lease for
// keyID, returning a fresh lease id on success or "" if the lease is held.
func (p *Pool) AcquireRefreshLease(ctx context.Context, keyID string) (string, error) {
	leaseID, err := newLeaseID()
	if err != nil {
		return "", fmt.Errorf("keypool: %w", err)
	}
	lockUntil := time.Now().Add(time.Duration(p.refreshLockMs) * time.Millisecond)
	acquired, err := p.store.AcquireRefreshLease(ctx, keyID, leaseID, lockUntil)
	if err != nil {
		return "", fmt.Errorf("keypool: acquiring refresh lease: %w", err)
	}
	if !acquired {
		return "", nil
	}
	return leaseID, nil
}

// ReleaseRefreshLease releases a lease previously returned by
// AcquireRefreshLease. Safe to call after the lease has already expired.
func (p *Pool) ReleaseRefreshLease(ctx context.Context, keyID, leaseID string) error {
	return p.store.ReleaseRefreshLease(ctx, keyID, leaseID)
}

// RefreshCredits stores a freshly fetched credit snapshot and applies the
// cooldown transition if the new remaining balance has dropped to or below
// the minimum threshold.
func (p *Pool) RefreshCredits(ctx context.Context, keyID string, credits Credits) error {
	if err := p.store.UpdateCredits(ctx, keyID, credits); err != nil {
		return fmt.Errorf("keypool: updating credits: %w", err)
	}
	remaining := credits.ComputeRemaining()
	if remaining != nil && *remaining <= p.minRemaining {
		until := time.Now().Add(time.Duration(p.cooldownMs) * time.Millisecond)
		return p.store.UpdateStatus(ctx, keyID, StatusCooldown, &until)
	}
	return nil
}

// ImportResult records one key's fate during a bulk import.
type ImportResult struct {
	Key         *Key
	LabelRenamed bool
	FinalLabel   string
}

// maxRenameAttempts bounds the "label (import N)" retry loop so a
// pathological collision run can't spin forever.
const maxRenameAttempts = 50

// ImportKeys inserts each key, retrying with a "<label> (import N)" suffix
// on label collision up to a fixed bound, and reports every rename made.
// Duplicate imports of the exact same secret are not deduplicated; callers
// must consult Masked or ID themselves.
func (p *Pool) ImportKeys(ctx context.Context, keys []*Key, insertFails func(error) bool) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(keys))

	for _, k := range keys {
		originalLabel := k.Label
		attempt := 0
		for {
			err := p.store.InsertKey(ctx, k)
			if err == nil {
				results = append(results, ImportResult{
					Key:          k,
					LabelRenamed: k.Label != originalLabel,
					FinalLabel:   k.Label,
				})
				break
			}
			if !insertFails(err) {
				return results, fmt.Errorf("keypool: importing key %q: %w", originalLabel, err)
			}
			attempt++
			if attempt > maxRenameAttempts {
				return results, fmt.Errorf("keypool: exhausted rename attempts for label %q", originalLabel)
			}
			k.Label = fmt.Sprintf("%s (import %d)", originalLabel, attempt+1)
		}
	}

	return results, nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func newLeaseID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
