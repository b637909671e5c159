package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/clienttoken"
)

// TokenStore implements mcpserver.TokenStore against the client_tokens
// table.
type TokenStore struct {
	DB *pgxpool.Pool
}

func NewTokenStore(db *pgxpool.Pool) *TokenStore {
	return &TokenStore{DB: db}
}

// ErrTokenNotFound is returned when no token with the presented prefix
// exists.
var ErrTokenNotFound = errors.New("clienttoken: not found")

func (s *TokenStore) LookupByPrefix(ctx context.Context, prefix string) (*clienttoken.Record, error) {
	r := &clienttoken.Record{}
	var secretHash []byte
	err := s.DB.QueryRow(ctx, `
		SELECT id, description, prefix, secret_hash, expires_at, revoked_at, allowed_tools, rate_limit, created_at
		FROM client_tokens
		WHERE prefix = $1
	`, prefix).Scan(
		&r.ID, &r.Description, &r.Prefix, &secretHash, &r.ExpiresAt, &r.RevokedAt, &r.AllowedTools, &r.RateLimit, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		log.Error().Err(err).Str("prefix", prefix).Msg("token lookup failed")
		return nil, err
	}
	copy(r.SecretHash[:], secretHash)
	return r, nil
}

// Insert persists a newly generated token record.
func (s *TokenStore) Insert(ctx context.Context, r *clienttoken.Record) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO client_tokens (id, description, prefix, secret_hash, expires_at, allowed_tools, rate_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.Description, r.Prefix, r.SecretHash[:], r.ExpiresAt, r.AllowedTools, r.RateLimit, r.CreatedAt)
	return err
}

// Delete permanently removes a token record.
func (s *TokenStore) Delete(ctx context.Context, id string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM client_tokens WHERE id = $1`, id)
	return err
}

// Revoke marks a token revoked as of now, idempotently.
func (s *TokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE client_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, at, id)
	return err
}

// List returns every token record, most recently created first.
func (s *TokenStore) List(ctx context.Context) ([]*clienttoken.Record, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, description, prefix, secret_hash, expires_at, revoked_at, allowed_tools, rate_limit, created_at
		FROM client_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clienttoken.Record
	for rows.Next() {
		r := &clienttoken.Record{}
		var secretHash []byte
		if err := rows.Scan(&r.ID, &r.Description, &r.Prefix, &secretHash, &r.ExpiresAt, &r.RevokedAt, &r.AllowedTools, &r.RateLimit, &r.CreatedAt); err != nil {
			return nil, err
		}
		copy(r.SecretHash[:], secretHash)
		out = append(out, r)
	}
	return out, rows.Err()
}
