package adminapi

import (
	"context"
	"crypto/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/searchbridge/mcp-gateway/internal/auditlog"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/postgres"
	"github.com/searchbridge/mcp-gateway/internal/ratelimit"
	"github.com/searchbridge/mcp-gateway/internal/settingscache"
	"github.com/searchbridge/mcp-gateway/internal/usagelog"
	"github.com/searchbridge/mcp-gateway/internal/vault"
)

const testAdminToken = "test-admin-token"

func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := postgres.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	for _, table := range []string{"usage_log", "audit_log", "client_tokens", "upstream_keys", "settings"} {
		if _, err := pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clean table %s: %v", table, err)
		}
	}

	return pool
}

// newTestServer wires a full Server against pool, with every dependency
// real except the upstream HTTP clients, which admin-surface tests never
// exercise directly.
func newTestServer(t *testing.T, pool *pgxpool.Pool) *Server {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating vault key: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	keys := postgres.NewKeyStore(pool)
	tokens := postgres.NewTokenStore(pool)
	settingsStore := postgres.NewSettingsStore(pool)
	settings := settingscache.New(settingsStore, time.Minute, map[settingscache.Key]string{
		settingscache.KeyTavilyKeySelectionStrategy: "round_robin",
		settingscache.KeySearchSourceMode:            "brave_prefer_tavily_fallback",
		settingscache.KeyResearchEnabled:             "true",
	})

	tavilyPool := keypool.New(keypool.ProviderTavily, keys, settings, 0, 60_000, 30_000)
	bravePool := keypool.New(keypool.ProviderBrave, keys, settings, 0, 60_000, 30_000)

	return &Server{
		AdminToken:      testAdminToken,
		AllowedOrigins:  []string{"*"},
		TavilyPool:      tavilyPool,
		BravePool:       bravePool,
		Vault:           v,
		Keys:            keys,
		Tokens:          tokens,
		Settings:        settings,
		Usage:           usagelog.New(pool),
		Audit:           auditlog.New(pool),
		CreditsCacheTTL: time.Hour,
		RevealLimiter:   ratelimit.New(1000, 60_000),
		MetricsGatherer: prometheus.NewRegistry(),
	}
}
