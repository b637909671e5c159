// Package adminapi implements the bridge's administrative HTTP surface:
// key and token CRUD, settings, and read-only usage/metrics reporting.
package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/auditlog"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/postgres"
	"github.com/searchbridge/mcp-gateway/internal/ratelimit"
	"github.com/searchbridge/mcp-gateway/internal/settingscache"
	"github.com/searchbridge/mcp-gateway/internal/upstream/tavily"
	"github.com/searchbridge/mcp-gateway/internal/usagelog"
	"github.com/searchbridge/mcp-gateway/internal/vault"
)

// Server holds every dependency the admin handlers need.
type Server struct {
	AdminToken     string
	AllowedOrigins []string

	TavilyPool *keypool.Pool
	BravePool  *keypool.Pool

	Vault  *vault.Vault
	Keys   *postgres.KeyStore
	Tokens *postgres.TokenStore

	Settings *settingscache.Cache
	Usage    *usagelog.Writer
	Audit    *auditlog.Writer

	Tavily          *tavily.Client
	CreditsCacheTTL time.Duration

	RevealLimiter *ratelimit.Limiter

	MetricsGatherer prometheus.Gatherer
}

// Routes builds the admin API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(correlationMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(s.requireAdminToken)

		r.Get("/server-info", s.handleGetServerInfo)
		r.Patch("/server-info", s.handlePatchServerInfo)

		r.Get("/keys", s.handleListKeys(keypool.ProviderTavily))
		r.Post("/keys", s.handleCreateKey(keypool.ProviderTavily))
		r.Patch("/keys/{id}", s.handlePatchKey(keypool.ProviderTavily))
		r.Delete("/keys/{id}", s.handleDeleteKey(keypool.ProviderTavily))
		r.Get("/keys/{id}/reveal", s.handleRevealKey(keypool.ProviderTavily))
		r.Post("/keys/{id}/refresh-credits", s.handleRefreshCredits)
		r.Post("/keys/sync-credits", s.handleSyncCredits)
		r.Get("/keys/export", s.handleExportKeys)
		r.Post("/keys/import", s.handleImportKeys)

		r.Get("/brave-keys", s.handleListKeys(keypool.ProviderBrave))
		r.Post("/brave-keys", s.handleCreateKey(keypool.ProviderBrave))
		r.Patch("/brave-keys/{id}", s.handlePatchKey(keypool.ProviderBrave))
		r.Delete("/brave-keys/{id}", s.handleDeleteKey(keypool.ProviderBrave))
		r.Get("/brave-keys/{id}/reveal", s.handleRevealKey(keypool.ProviderBrave))

		r.Get("/tokens", s.handleListTokens)
		r.Post("/tokens", s.handleCreateToken)
		r.Post("/tokens/{id}/revoke", s.handleRevokeToken)
		r.Delete("/tokens/{id}", s.handleDeleteToken)

		r.Get("/usage", s.handleUsage)
		r.Get("/usage/summary", s.handleUsageSummary)
		r.Get("/cost-estimate", s.handleCostEstimate)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

type contextKey string

const correlationIDKey contextKey = "correlationId"

func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", id)
		logger := log.With().Str("correlationId", id).Logger()
		ctx := logger.WithContext(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdminToken enforces the bearer token against AdminToken with a
// constant-time comparison.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" || !vault.ConstantTimeEqual(bearer, s.AdminToken) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			RespondError(w, http.StatusUnauthorized, "auth_invalid", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
