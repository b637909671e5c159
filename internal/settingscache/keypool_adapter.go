package settingscache

import (
	"context"

	"github.com/searchbridge/mcp-gateway/internal/keypool"
)

// TavilyKeySelectionStrategy adapts Cache to keypool.SettingsSource, falling
// back to round-robin if the cached value is unrecognised or unavailable.
func (c *Cache) TavilyKeySelectionStrategy(ctx context.Context) keypool.Strategy {
	v, err := c.Get(ctx, KeyTavilyKeySelectionStrategy)
	if err != nil {
		return keypool.StrategyRoundRobin
	}
	switch keypool.Strategy(v) {
	case keypool.StrategyRandom:
		return keypool.StrategyRandom
	default:
		return keypool.StrategyRoundRobin
	}
}
