package mcptools

import (
	"context"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/dispatch"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
	"github.com/searchbridge/mcp-gateway/internal/upstream/brave"
	"github.com/searchbridge/mcp-gateway/internal/upstream/tavily"
)

// dispatchSearch is the single entry point both tavily_search and
// brave_web_search funnel through: the configured source mode, not the
// tool name the client happened to call, decides which upstream(s) this
// call actually reaches.
func dispatchSearch(ctx context.Context, deps *Deps, toolCtx *ToolContext, query string, offset, count int) ([]upstream.SearchResult, error) {
	mode := dispatch.ModeBravePreferTavilyBackup
	if deps.SourceMode != nil {
		mode = deps.SourceMode(ctx)
	}

	fetchA := func(ctx context.Context) ([]upstream.SearchResult, error) {
		return withKey(ctx, deps, deps.TavilyPool, toolCtx, func(secret string) ([]upstream.SearchResult, error) {
			return deps.Tavily.Search(ctx, secret, tavily.SearchParams{Query: query, MaxResults: count})
		})
	}

	fetchB := func(ctx context.Context) ([]upstream.SearchResult, error) {
		return runThroughBraveGate(ctx, deps, func(ctx context.Context) ([]upstream.SearchResult, error) {
			return withKey(ctx, deps, deps.BravePool, toolCtx, func(secret string) ([]upstream.SearchResult, error) {
				return deps.Brave.WebSearch(ctx, secret, brave.WebSearchParams{Query: query, Count: count, Offset: offset})
			})
		})
	}

	return dispatch.Dispatch(ctx, mode, dispatch.Params{Offset: offset, Count: count}, fetchA, fetchB)
}

// runThroughBraveGate serialises calls to P-B behind the shared minimum-
// interval gate; a nil gate (e.g. in tests) falls through to a direct call.
func runThroughBraveGate(ctx context.Context, deps *Deps, fn func(context.Context) ([]upstream.SearchResult, error)) ([]upstream.SearchResult, error) {
	if deps.BraveGate == nil {
		return fn(ctx)
	}

	var maxWait time.Duration
	if deps.BraveGateMaxWait != nil {
		maxWait = deps.BraveGateMaxWait()
	}

	var result []upstream.SearchResult
	err := deps.BraveGate.Run(ctx, maxWait, func(ctx context.Context) error {
		r, err := fn(ctx)
		result = r
		return err
	})
	return result, err
}
