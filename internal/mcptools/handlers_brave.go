package mcptools

import (
	"context"
	"encoding/json"

	"github.com/searchbridge/mcp-gateway/internal/upstream"
	"github.com/searchbridge/mcp-gateway/internal/upstream/brave"
)

// NewBraveWebSearchHandler builds the brave_web_search handler. Like
// tavily_search, it funnels through dispatchSearch: calling this tool with
// searchSourceMode=tavily_only still reaches P-A.
func NewBraveWebSearchHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params BraveWebSearchParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		results, err := dispatchSearch(ctx, deps, toolCtx, params.Query, params.Offset, params.Count)
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return map[string]interface{}{"results": results}, nil
	}
}

// NewBraveLocalSearchHandler builds the brave_local_search handler. Local
// search has no P-A equivalent, so it always goes to P-B (still serialised
// through the shared rate gate).
func NewBraveLocalSearchHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params BraveLocalSearchParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		results, err := runThroughBraveGate(ctx, deps, func(ctx context.Context) ([]upstream.SearchResult, error) {
			return withKey(ctx, deps, deps.BravePool, toolCtx, func(secret string) ([]upstream.SearchResult, error) {
				return deps.Brave.LocalSearch(ctx, secret, brave.LocalSearchParams{Query: params.Query, Count: params.Count})
			})
		})
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return map[string]interface{}{"results": results}, nil
	}
}
