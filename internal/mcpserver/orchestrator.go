package mcpserver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/clienttoken"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/mcptools"
	"github.com/searchbridge/mcp-gateway/internal/metrics"
	"github.com/searchbridge/mcp-gateway/internal/ratelimit"
	"github.com/searchbridge/mcp-gateway/internal/vault"
)

// ErrAuthMissing is surfaced when no bearer token is present at all.
var ErrAuthMissing = errors.New("auth_missing")

// ErrAuthInvalid is surfaced when a presented token is malformed, unknown,
// revoked, expired, or does not hash-match.
var ErrAuthInvalid = errors.New("auth_invalid")

// ErrRateLimited is surfaced when either the global or per-token fixed
// window limiter rejects the call.
type ErrRateLimited struct {
	RetryAfterMs int64
	Scope        string // "global" or "token"
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limited_local: %s", e.Scope)
}

// ErrPreflightExhausted is surfaced when the key pool preflight finds no
// usable key before the dispatcher is even invoked.
type ErrPreflightExhausted struct {
	RetryAfterMs int64
}

func (e *ErrPreflightExhausted) Error() string { return "preflight_exhausted" }

// ErrToolNotAllowed is surfaced when a token's allow-list excludes the
// requested tool.
type ErrToolNotAllowed struct {
	Allowed []string
}

func (e *ErrToolNotAllowed) Error() string { return "tool_not_allowed" }

// TokenStore resolves a presented prefix to its stored record.
type TokenStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*clienttoken.Record, error)
}

// KeyPreflighter checks whether the key pool for a tool's provider has
// usable capacity before the dispatcher runs.
type KeyPreflighter interface {
	Preflight(ctx context.Context) (keypool.PreflightResult, error)
}

// UsageRecorder writes the per-call usage row; satisfied by
// internal/usagelog.
type UsageRecorder interface {
	Record(ctx context.Context, row UsageRow) error
}

// UsageRow is the subset of usage-log fields the orchestrator itself
// knows how to fill in.
type UsageRow struct {
	Timestamp         time.Time
	ToolName          string
	Outcome           string
	LatencyMs         int64
	ClientTokenID     string
	ClientTokenPrefix string
	UpstreamKeyID     string
	QueryHash         string
	ErrorMessage      string
	ArgsJSON          []byte
}

// Orchestrator implements the auth -> rate-limit -> preflight ->
// dispatch -> log pipeline described for every tools/call.
type Orchestrator struct {
	Tokens        TokenStore
	GlobalLimiter *ratelimit.Limiter
	TokenLimiter  *ratelimit.Limiter
	Preflighters  map[string]KeyPreflighter // keyed by provider, e.g. "tavily"/"brave"
	Registry      *mcptools.Registry
	Usage         UsageRecorder
	QueryHashKey  []byte // HMAC-style key for query preview hashing
}

// Authenticate implements pipeline steps 1-2.
func (o *Orchestrator) Authenticate(ctx context.Context, bearer string) (*clienttoken.Record, error) {
	if bearer == "" {
		return nil, ErrAuthMissing
	}
	tok, err := clienttoken.Parse(bearer)
	if err != nil {
		return nil, ErrAuthInvalid
	}
	record, err := o.Tokens.LookupByPrefix(ctx, tok.Prefix)
	if err != nil {
		return nil, ErrAuthInvalid
	}
	if !record.Verify(tok.Secret, time.Now()) {
		return nil, ErrAuthInvalid
	}
	return record, nil
}

// CheckRateLimits implements pipeline step 3: global limiter, then
// per-token limiter, in that order.
func (o *Orchestrator) CheckRateLimits(tokenID string) error {
	if r := o.GlobalLimiter.CheckNow("global"); !r.OK {
		metrics.RateLimitedTotal.WithLabelValues("global").Inc()
		return &ErrRateLimited{RetryAfterMs: r.RetryAfterMs, Scope: "global"}
	}
	if r := o.TokenLimiter.CheckNow(tokenID); !r.OK {
		metrics.RateLimitedTotal.WithLabelValues("token").Inc()
		return &ErrRateLimited{RetryAfterMs: r.RetryAfterMs, Scope: "token"}
	}
	return nil
}

// CheckPreflight implements pipeline step 4, run only for tools/call.
func (o *Orchestrator) CheckPreflight(ctx context.Context, provider string) error {
	p, ok := o.Preflighters[provider]
	if !ok {
		return nil
	}
	result, err := p.Preflight(ctx)
	if err != nil {
		return fmt.Errorf("mcpserver: preflight: %w", err)
	}
	if !result.OK {
		return &ErrPreflightExhausted{RetryAfterMs: result.RetryAfterMs}
	}
	return nil
}

// CheckToolAllowed implements pipeline step 5.
func (o *Orchestrator) CheckToolAllowed(record *clienttoken.Record, toolName string) error {
	if !record.AllowsTool(toolName) {
		return &ErrToolNotAllowed{Allowed: record.AllowedTools}
	}
	return nil
}

// HashQuery computes the HMAC-style query preview hash stored in usage
// logs, using crypto/sha256 keyed by QueryHashKey (prepended, since the
// vault package only exposes an unkeyed SHA256 helper and a dedicated
// HMAC dependency would be the only consumer of one).
func (o *Orchestrator) HashQuery(query string) string {
	h := vault.SHA256(append(append([]byte{}, o.QueryHashKey...), []byte(query)...))
	return hex.EncodeToString(h[:])
}

// RecordUsage writes a usage row, swallowing any store error (the
// usagelog writer logs it) so a logging failure never fails the tool call
// itself.
func (o *Orchestrator) RecordUsage(ctx context.Context, row UsageRow) {
	metrics.ToolCallsTotal.WithLabelValues(row.ToolName, row.Outcome).Inc()
	metrics.ToolCallLatencyMs.WithLabelValues(row.ToolName).Observe(float64(row.LatencyMs))

	if o.Usage == nil {
		return
	}
	_ = o.Usage.Record(ctx, row)
}
