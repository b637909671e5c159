package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/searchbridge/mcp-gateway/internal/settingscache"
)

// SettingsStore implements settingscache.Store against the settings
// table.
type SettingsStore struct {
	DB *pgxpool.Pool
}

func NewSettingsStore(db *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{DB: db}
}

func (s *SettingsStore) GetSetting(ctx context.Context, key settingscache.Key) (string, error) {
	var value string
	if err := s.DB.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, string(key)).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}

func (s *SettingsStore) SetSetting(ctx context.Context, key settingscache.Key, value string) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, string(key), value)
	return err
}
