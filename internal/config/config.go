// Package config loads the bridge server's environment-driven configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// SelectionStrategy is the default key-selection policy, overridable per
// request via the server settings cache.
type SelectionStrategy string

const (
	StrategyRoundRobin SelectionStrategy = "round_robin"
	StrategyRandom     SelectionStrategy = "random"
)

// SourceMode decides which upstream(s) serve a tool call.
type SourceMode string

const (
	ModeTavilyOnly             SourceMode = "tavily_only"
	ModeBraveOnly              SourceMode = "brave_only"
	ModeCombined               SourceMode = "combined"
	ModeBravePreferTavilyBackup SourceMode = "brave_prefer_tavily_fallback"
)

// BraveOverflow controls what happens when the rate gate times out.
type BraveOverflow string

const (
	OverflowFallbackToTavily BraveOverflow = "fallback_to_tavily"
	Overflow429              BraveOverflow = "fail"
)

// Config holds all environment-sourced configuration for the bridge.
type Config struct {
	DatabaseURL          string `env:"DATABASE_URL,required"`
	AdminAPIToken        string `env:"ADMIN_API_TOKEN,required"`
	KeyEncryptionSecret  string `env:"KEY_ENCRYPTION_SECRET,required"`
	QueryHashSecret      string `env:"QUERY_HASH_SECRET" envDefault:""`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Env      string `env:"ENV" envDefault:""`

	EnableQueryAuth bool `env:"ENABLE_QUERY_AUTH" envDefault:"false"`

	MCPRateLimitPerMinute       int `env:"MCP_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	MCPGlobalRateLimitPerMinute int `env:"MCP_GLOBAL_RATE_LIMIT_PER_MINUTE" envDefault:"600"`
	MCPCooldownMs               int `env:"MCP_COOLDOWN_MS" envDefault:"60000"`
	MCPMaxRetries               int `env:"MCP_MAX_RETRIES" envDefault:"2"`

	TavilyKeySelectionStrategy SelectionStrategy `env:"TAVILY_KEY_SELECTION_STRATEGY" envDefault:"round_robin"`
	SearchSourceMode           SourceMode        `env:"SEARCH_SOURCE_MODE" envDefault:"brave_prefer_tavily_fallback"`
	ResearchEnabled            bool              `env:"RESEARCH_ENABLED" envDefault:"true"`

	BraveMaxQPS      float64       `env:"BRAVE_MAX_QPS" envDefault:"1"`
	BraveMaxQueueMs  int           `env:"BRAVE_MAX_QUEUE_MS" envDefault:"30000"`
	BraveOverflow    BraveOverflow `env:"BRAVE_OVERFLOW" envDefault:"fallback_to_tavily"`
	BraveHTTPTimeout time.Duration `env:"BRAVE_HTTP_TIMEOUT_MS" envDefault:"10000ms"`

	TavilyCreditsRefreshLockMs int `env:"TAVILY_CREDITS_REFRESH_LOCK_MS" envDefault:"15000"`
	TavilyCreditsCacheTTLMs    int `env:"TAVILY_CREDITS_CACHE_TTL_MS" envDefault:"60000"`
	TavilyCreditsMinRemaining  int `env:"TAVILY_CREDITS_MIN_REMAINING" envDefault:"1"`
	TavilyCreditsCooldownMs    int `env:"TAVILY_CREDITS_COOLDOWN_MS" envDefault:"300000"`

	SettingsCacheRefreshMs int `env:"SETTINGS_CACHE_REFRESH_MS" envDefault:"5000"`

	SessionIdleMs int `env:"MCP_SESSION_IDLE_MS" envDefault:"1800000"`

	AllowedOrigins      []string `env:"MCP_ALLOWED_ORIGINS" envSeparator:","`
	AdminAllowedOrigins []string `env:"ADMIN_ALLOWED_ORIGINS" envSeparator:","`

	AdminRevealRateLimitPerMinute int `env:"ADMIN_REVEAL_RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment and fails fast on any
// missing required value or malformed duration/number.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants env.Parse's struct tags cannot express.
func (c *Config) Validate() error {
	switch c.TavilyKeySelectionStrategy {
	case StrategyRoundRobin, StrategyRandom:
	default:
		return fmt.Errorf("config: invalid TAVILY_KEY_SELECTION_STRATEGY %q", c.TavilyKeySelectionStrategy)
	}

	switch c.SearchSourceMode {
	case ModeTavilyOnly, ModeBraveOnly, ModeCombined, ModeBravePreferTavilyBackup:
	default:
		return fmt.Errorf("config: invalid SEARCH_SOURCE_MODE %q", c.SearchSourceMode)
	}

	switch c.BraveOverflow {
	case OverflowFallbackToTavily, Overflow429:
	default:
		return fmt.Errorf("config: invalid BRAVE_OVERFLOW %q", c.BraveOverflow)
	}

	if len(c.AdminAPIToken) < 32 {
		return fmt.Errorf("config: ADMIN_API_TOKEN should be at least 32 bytes (got %d)", len(c.AdminAPIToken))
	}

	return nil
}

// SessionIdle returns the MCP session idle timeout as a duration.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMs) * time.Millisecond
}

// SettingsCacheRefresh returns the settings cache TTL, floored at 250ms per spec.
func (c *Config) SettingsCacheRefresh() time.Duration {
	ms := c.SettingsCacheRefreshMs
	if ms < 250 {
		ms = 250
	}
	return time.Duration(ms) * time.Millisecond
}
