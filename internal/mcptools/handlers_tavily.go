package mcptools

import (
	"context"
	"encoding/json"

	"github.com/searchbridge/mcp-gateway/internal/upstream/tavily"
)

// NewTavilySearchHandler builds the tavily_search handler. Its results are
// governed by the configured search source mode, not necessarily P-A alone:
// a mode of brave_only or combined can route this call's work to P-B too.
func NewTavilySearchHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params TavilySearchParams
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

// NewTavilyExtractHandler builds the tavily_extract handler.
func NewTavilyExtractHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params TavilyExtractParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		result, err := withKey(ctx, deps, deps.TavilyPool, toolCtx, func(secret string) (interface{}, error) {
			return deps.Tavily.Extract(ctx, secret, tavily.ExtractParams{URLs: params.URLs})
		})
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return result, nil
	}
}

// NewTavilyCrawlHandler builds the tavily_crawl handler.
func NewTavilyCrawlHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params TavilyCrawlParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		result, err := withKey(ctx, deps, deps.TavilyPool, toolCtx, func(secret string) (interface{}, error) {
			return deps.Tavily.Crawl(ctx, secret, tavily.CrawlParams{URL: params.URL, MaxDepth: params.MaxDepth})
		})
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return result, nil
	}
}

// NewTavilyMapHandler builds the tavily_map handler.
func NewTavilyMapHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params TavilyMapParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		result, err := withKey(ctx, deps, deps.TavilyPool, toolCtx, func(secret string) (interface{}, error) {
			return deps.Tavily.Map(ctx, secret, tavily.MapParams{URL: params.URL})
		})
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return result, nil
	}
}

// NewTavilyResearchHandler builds the tavily_research handler. The handler
// itself always runs when registered; hiding it from tools/list when
// research is disabled is the registry's job, not this handler's.
func NewTavilyResearchHandler(deps *Deps) Handler {
	return func(ctx context.Context, toolCtx *ToolContext, raw json.RawMessage) (interface{}, error) {
		var params TavilyResearchParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, "invalid parameters: "+err.Error(), nil)
		}
		if err := params.Validate(); err != nil {
			return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
		}

		result, err := withKey(ctx, deps, deps.TavilyPool, toolCtx, func(secret string) (*tavily.ResearchResult, error) {
			return deps.Tavily.Research(ctx, secret, tavily.ResearchParams{Query: params.Query, Model: params.Model})
		})
		if err != nil {
			return nil, WrapUpstreamError(err)
		}
		return result, nil
	}
}
