package settingscache

import (
	"context"

	"github.com/searchbridge/mcp-gateway/internal/dispatch"
)

// SearchSourceMode adapts Cache to mcptools.SourceModeResolver, falling
// back to brave_prefer_tavily_fallback (the spec's default) if the cached
// value is unrecognised or unavailable.
func (c *Cache) SearchSourceMode(ctx context.Context) dispatch.Mode {
	v, err := c.Get(ctx, KeySearchSourceMode)
	if err != nil {
		return dispatch.ModeBravePreferTavilyBackup
	}
	switch dispatch.Mode(v) {
	case dispatch.ModeTavilyOnly, dispatch.ModeBraveOnly, dispatch.ModeCombined, dispatch.ModeBravePreferTavilyBackup:
		return dispatch.Mode(v)
	default:
		return dispatch.ModeBravePreferTavilyBackup
	}
}

// ResearchEnabled adapts Cache to mcpserver's researchEnabledFunc,
// defaulting to enabled if the cached value is unrecognised or
// unavailable.
func (c *Cache) ResearchEnabled(ctx context.Context) bool {
	v, err := c.Get(ctx, KeyResearchEnabled)
	if err != nil {
		return true
	}
	return v != "false"
}
