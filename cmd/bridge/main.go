// Command bridge runs the multi-tenant MCP search gateway: it serves the
// /mcp JSON-RPC endpoint for client tool calls and the /admin/api surface
// for key, token, and settings management.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/adminapi"
	"github.com/searchbridge/mcp-gateway/internal/auditlog"
	"github.com/searchbridge/mcp-gateway/internal/config"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/mcpserver"
	"github.com/searchbridge/mcp-gateway/internal/mcptools"
	"github.com/searchbridge/mcp-gateway/internal/metrics"
	"github.com/searchbridge/mcp-gateway/internal/postgres"
	"github.com/searchbridge/mcp-gateway/internal/ratelimit"
	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/settingscache"
	"github.com/searchbridge/mcp-gateway/internal/upstream/brave"
	"github.com/searchbridge/mcp-gateway/internal/upstream/tavily"
	"github.com/searchbridge/mcp-gateway/internal/usagelog"
	"github.com/searchbridge/mcp-gateway/internal/vault"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "mcp-gateway").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	migrationsDir, err := filepath.Abs("internal/postgres/migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("resolving migrations directory")
	}
	if err := postgres.RunMigrations(cfg.DatabaseURL, migrationsDir); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres")
	}
	defer pool.Close()

	keyVaultMaterial, err := vault.ParseKey(cfg.KeyEncryptionSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing KEY_ENCRYPTION_SECRET")
	}
	keyVault, err := vault.New(keyVaultMaterial)
	if err != nil {
		log.Fatal().Err(err).Msg("constructing key vault")
	}

	keyStore := postgres.NewKeyStore(pool)
	tokenStore := postgres.NewTokenStore(pool)
	settingsStore := postgres.NewSettingsStore(pool)
	usageWriter := usagelog.New(pool)
	auditWriter := auditlog.New(pool)

	settings := settingscache.New(settingsStore, cfg.SettingsCacheRefresh(), map[settingscache.Key]string{
		settingscache.KeyTavilyKeySelectionStrategy: string(cfg.TavilyKeySelectionStrategy),
		settingscache.KeySearchSourceMode:           string(cfg.SearchSourceMode),
		settingscache.KeyResearchEnabled:            boolString(cfg.ResearchEnabled),
	})

	tavilyPool := keypool.New(keypool.ProviderTavily, keyStore, settings,
		int64(cfg.TavilyCreditsMinRemaining), int64(cfg.MCPCooldownMs), int64(cfg.TavilyCreditsRefreshLockMs))
	bravePool := keypool.New(keypool.ProviderBrave, keyStore, settings,
		0, int64(cfg.MCPCooldownMs), int64(cfg.TavilyCreditsRefreshLockMs))

	tavilyClient := tavily.New("", 20*time.Second)
	braveClient := brave.New("", cfg.BraveHTTPTimeout)

	braveGate := rategate.New(qpsToInterval(cfg.BraveMaxQPS))
	braveGateMaxWait := time.Duration(cfg.BraveMaxQueueMs) * time.Millisecond

	toolDeps := &mcptools.Deps{
		TavilyPool:       tavilyPool,
		BravePool:        bravePool,
		Vault:            keyVault,
		Tavily:           tavilyClient,
		Brave:            braveClient,
		BraveGate:        braveGate,
		BraveGateMaxWait: func() time.Duration { return braveGateMaxWait },
		SourceMode:       settings.SearchSourceMode,
		MaxRetries:       cfg.MCPMaxRetries,
	}
	registry := mcptools.WireRegistry(toolDeps)

	orchestrator := &mcpserver.Orchestrator{
		Tokens:        tokenStore,
		GlobalLimiter: ratelimit.New(cfg.MCPGlobalRateLimitPerMinute, 60_000),
		TokenLimiter:  ratelimit.New(cfg.MCPRateLimitPerMinute, 60_000),
		Preflighters: map[string]mcpserver.KeyPreflighter{
			"tavily": tavilyPool,
			"brave":  bravePool,
		},
		Registry:     registry,
		Usage:        usageWriter,
		QueryHashKey: []byte(cfg.QueryHashSecret),
	}

	sessions := mcpserver.NewSessionManager(cfg.SessionIdle())
	defer sessions.Close()

	mcpHandler := &mcpserver.Handler{
		Orchestrator:    orchestrator,
		Sessions:        sessions,
		EnableQueryAuth: cfg.EnableQueryAuth,
		AllowedOrigins:  cfg.AllowedOrigins,
		ResearchEnabled: func() bool { return settings.ResearchEnabled(context.Background()) },
	}

	metricsRegistry := prometheus.NewRegistry()
	for _, c := range metrics.All() {
		metricsRegistry.MustRegister(c)
	}

	revealLimiter := ratelimit.New(cfg.AdminRevealRateLimitPerMinute, 60_000)

	adminServer := &adminapi.Server{
		AdminToken:      cfg.AdminAPIToken,
		AllowedOrigins:  cfg.AdminAllowedOrigins,
		TavilyPool:      tavilyPool,
		BravePool:       bravePool,
		Vault:           keyVault,
		Keys:            keyStore,
		Tokens:          tokenStore,
		Settings:        settings,
		Usage:           usageWriter,
		Audit:           auditWriter,
		Tavily:          tavilyClient,
		CreditsCacheTTL: time.Duration(cfg.TavilyCreditsCacheTTLMs) * time.Millisecond,
		RevealLimiter:   revealLimiter,
		MetricsGatherer: metricsRegistry,
	}

	root := chi.NewRouter()
	root.Mount("/mcp", mcpHandler)
	root.Mount("/", adminServer.Routes())

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("server stopped")
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// qpsToInterval converts a maximum queries-per-second figure into the
// minimum interval the rate gate enforces between calls.
func qpsToInterval(qps float64) time.Duration {
	if qps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / qps)
}
