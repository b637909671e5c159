package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/keypool"
)

// KeyStore implements keypool.Store against the upstream_keys table.
type KeyStore struct {
	DB *pgxpool.Pool
}

// NewKeyStore builds a KeyStore over an open pool.
func NewKeyStore(db *pgxpool.Pool) *KeyStore {
	return &KeyStore{DB: db}
}

func (s *KeyStore) ListCandidates(ctx context.Context, provider keypool.Provider) ([]*keypool.Key, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, provider, label, ciphertext, masked, status, cooldown_until,
		       last_used_at, created_at, updated_at,
		       key_usage, key_limit, key_remaining,
		       account_plan_usage, account_plan_limit,
		       account_pay_as_you_go_usage, account_pay_as_you_go_limit,
		       account_remaining, credits_remaining, credits_checked_at, credits_expires_at,
		       refresh_lock_until, refresh_lock_id
		FROM upstream_keys
		WHERE provider = $1
		ORDER BY created_at
	`, provider)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("listing key candidates failed")
		return nil, err
	}
	defer rows.Close()

	var out []*keypool.Key
	for rows.Next() {
		k := &keypool.Key{Provider: provider}
		var refreshLockID *string
		if err := rows.Scan(
			&k.ID, &k.Provider, &k.Label, &k.Ciphertext, &k.Masked, &k.Status, &k.CooldownUntil,
			&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt,
			&k.Credits.KeyUsage, &k.Credits.KeyLimit, &k.Credits.KeyRemaining,
			&k.Credits.AccountPlanUsage, &k.Credits.AccountPlanLimit,
			&k.Credits.AccountPayAsYouGoUsage, &k.Credits.AccountPayAsYouGoLimit,
			&k.Credits.AccountRemaining, &k.Credits.Remaining, &k.Credits.CheckedAt, &k.Credits.ExpiresAt,
			&k.RefreshLockUntil, &refreshLockID,
		); err != nil {
			return nil, err
		}
		if refreshLockID != nil {
			k.RefreshLockID = *refreshLockID
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetByID fetches a single key by id, returning nil if none exists.
func (s *KeyStore) GetByID(ctx context.Context, keyID string) (*keypool.Key, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, provider, label, ciphertext, masked, status, cooldown_until,
		       last_used_at, created_at, updated_at,
		       key_usage, key_limit, key_remaining,
		       account_plan_usage, account_plan_limit,
		       account_pay_as_you_go_usage, account_pay_as_you_go_limit,
		       account_remaining, credits_remaining, credits_checked_at, credits_expires_at,
		       refresh_lock_until, refresh_lock_id
		FROM upstream_keys WHERE id = $1
	`, keyID)

	k := &keypool.Key{}
	var refreshLockID *string
	err := row.Scan(
		&k.ID, &k.Provider, &k.Label, &k.Ciphertext, &k.Masked, &k.Status, &k.CooldownUntil,
		&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt,
		&k.Credits.KeyUsage, &k.Credits.KeyLimit, &k.Credits.KeyRemaining,
		&k.Credits.AccountPlanUsage, &k.Credits.AccountPlanLimit,
		&k.Credits.AccountPayAsYouGoUsage, &k.Credits.AccountPayAsYouGoLimit,
		&k.Credits.AccountRemaining, &k.Credits.Remaining, &k.Credits.CheckedAt, &k.Credits.ExpiresAt,
		&k.RefreshLockUntil, &refreshLockID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if refreshLockID != nil {
		k.RefreshLockID = *refreshLockID
	}
	return k, nil
}

// DeleteKey removes a key outright; only used by the admin API for a
// permanent CRUD delete, not the lifecycle status transitions.
func (s *KeyStore) DeleteKey(ctx context.Context, keyID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM upstream_keys WHERE id = $1`, keyID)
	return err
}

func (s *KeyStore) UpdateStatus(ctx context.Context, keyID string, status keypool.Status, cooldownUntil *time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE upstream_keys SET status = $1, cooldown_until = $2, updated_at = now()
		WHERE id = $3
	`, status, cooldownUntil, keyID)
	return err
}

func (s *KeyStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE upstream_keys SET last_used_at = $1 WHERE id = $2`, at, keyID)
	return err
}

// AcquireRefreshLease claims the exclusive credit-refresh lease for a key
// with compare-and-swap semantics: it only succeeds if no unexpired lease
// is currently held.
func (s *KeyStore) AcquireRefreshLease(ctx context.Context, keyID, leaseID string, lockUntil time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		UPDATE upstream_keys
		SET refresh_lock_id = $1, refresh_lock_until = $2
		WHERE id = $3 AND (refresh_lock_until IS NULL OR refresh_lock_until < now())
	`, leaseID, lockUntil, keyID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *KeyStore) ReleaseRefreshLease(ctx context.Context, keyID, leaseID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE upstream_keys
		SET refresh_lock_id = NULL, refresh_lock_until = NULL
		WHERE id = $1 AND refresh_lock_id = $2
	`, keyID, leaseID)
	return err
}

func (s *KeyStore) UpdateCredits(ctx context.Context, keyID string, credits keypool.Credits) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE upstream_keys SET
			key_usage = $1, key_limit = $2, key_remaining = $3,
			account_plan_usage = $4, account_plan_limit = $5,
			account_pay_as_you_go_usage = $6, account_pay_as_you_go_limit = $7,
			account_remaining = $8, credits_remaining = $9,
			credits_checked_at = $10, credits_expires_at = $11,
			updated_at = now()
		WHERE id = $12
	`, credits.KeyUsage, credits.KeyLimit, credits.KeyRemaining,
		credits.AccountPlanUsage, credits.AccountPlanLimit,
		credits.AccountPayAsYouGoUsage, credits.AccountPayAsYouGoLimit,
		credits.AccountRemaining, credits.Remaining,
		credits.CheckedAt, credits.ExpiresAt, keyID)
	return err
}

func (s *KeyStore) InsertKey(ctx context.Context, key *keypool.Key) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO upstream_keys (id, provider, label, ciphertext, masked, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, key.ID, key.Provider, key.Label, key.Ciphertext, key.Masked, key.Status, key.CreatedAt)
	return err
}

// pgUniqueViolation is the SQLSTATE code Postgres returns for a unique
// constraint violation.
const pgUniqueViolation = "23505"

// IsLabelCollision reports whether err is a unique-violation on the
// (provider, label) index, the signal keypool.Pool.ImportKeys uses to
// retry an insert under a renamed label.
func IsLabelCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
