// Package dispatch implements the combined-search dispatcher: source-mode
// routing across the two upstream providers and the interleaved merge used
// by combined mode.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

// Mode selects which upstream(s) serve a call.
type Mode string

const (
	ModeTavilyOnly             Mode = "tavily_only"
	ModeBraveOnly              Mode = "brave_only"
	ModeCombined               Mode = "combined"
	ModeBravePreferTavilyBackup Mode = "brave_prefer_tavily_fallback"
)

// ErrSourceUnavailable is returned by brave_only mode when no active P-B
// key exists.
var ErrSourceUnavailable = errors.New("source_unavailable")

// ErrBothSourcesFailed is returned by combined mode when both providers
// fail.
var ErrBothSourcesFailed = errors.New("tool_error: both sources failed")

// Fetcher calls one provider and returns its normalised results. Callers
// (the request orchestrator) close over the selected key and tool args.
type Fetcher func(ctx context.Context) ([]upstream.SearchResult, error)

// Params carries the merge-relevant request arguments that are otherwise
// opaque to the dispatcher.
type Params struct {
	Offset int
	Count  int
}

// fetchOutcome pairs a fetch's results with its error for settle-style
// fanout — neither side cancels the other.
type fetchOutcome struct {
	results []upstream.SearchResult
	err     error
}

// Dispatch routes a search to the provider(s) selected by mode, retrying
// or merging as mode dictates. fetchTavily/fetchBrave may be nil when that
// provider genuinely has no candidate key; a nil Fetcher behaves as if it
// returned ErrSourceUnavailable immediately, except in
// ModeBravePreferTavilyBackup, where a nil fetchBrave goes straight to
// fetchTavily.
func Dispatch(ctx context.Context, mode Mode, params Params, fetchTavily, fetchBrave Fetcher) ([]upstream.SearchResult, error) {
	switch mode {
	case ModeTavilyOnly:
		return callOrUnavailable(ctx, fetchTavily)
	case ModeBraveOnly:
		return callOrUnavailable(ctx, fetchBrave)
	case ModeCombined:
		if params.Offset > 0 {
			// P-A does not support offset pagination; combined mode falls
			// back to P-B alone for any page beyond the first.
			return callOrUnavailable(ctx, fetchBrave)
		}
		return combined(ctx, params, fetchTavily, fetchBrave)
	case ModeBravePreferTavilyBackup:
		return bravePreferTavilyFallback(ctx, fetchTavily, fetchBrave)
	default:
		return nil, fmt.Errorf("dispatch: unknown mode %q", mode)
	}
}

func callOrUnavailable(ctx context.Context, fetch Fetcher) ([]upstream.SearchResult, error) {
	if fetch == nil {
		return nil, ErrSourceUnavailable
	}
	return fetch(ctx)
}

func combined(ctx context.Context, params Params, fetchTavily, fetchBrave Fetcher) ([]upstream.SearchResult, error) {
	var wg sync.WaitGroup
	var a, b fetchOutcome

	run := func(fetch Fetcher, out *fetchOutcome) {
		defer wg.Done()
		if fetch == nil {
			out.err = ErrSourceUnavailable
			return
		}
		out.results, out.err = fetch(ctx)
	}

	wg.Add(2)
	go run(fetchTavily, &a)
	go run(fetchBrave, &b)
	wg.Wait()

	if a.err != nil && b.err != nil {
		return nil, ErrBothSourcesFailed
	}
	if a.err != nil {
		return truncate(b.results, count(params)), nil
	}
	if b.err != nil {
		return truncate(a.results, count(params)), nil
	}

	return merge(a.results, b.results, count(params)), nil
}

func bravePreferTavilyFallback(ctx context.Context, fetchTavily, fetchBrave Fetcher) ([]upstream.SearchResult, error) {
	if fetchBrave != nil {
		results, err := fetchBrave(ctx)
		if err == nil {
			return results, nil
		}
		if !shouldFallback(err) {
			return nil, err
		}
	}
	return callOrUnavailable(ctx, fetchTavily)
}

// shouldFallback reports whether an error from the preferred provider
// should trigger a retry on the backup provider, per the set of outcomes
// named for this mode: rate_gate_timeout, auth_failed, rate_limited, and
// provider_error.
func shouldFallback(err error) bool {
	if errors.Is(err, rategate.ErrTimeout) {
		return true
	}
	var classified *upstream.ClassifiedError
	if errors.As(err, &classified) {
		switch classified.Kind {
		case upstream.KindAuthFailed, upstream.KindRateLimited, upstream.KindProviderError:
			return true
		}
	}
	return false
}

// merge interleaves a and b by index, deduplicating on URL with a taking
// precedence, then truncates to count.
func merge(a, b []upstream.SearchResult, count int) []upstream.SearchResult {
	seen := make(map[string]struct{})
	out := make([]upstream.SearchResult, 0, count)

	max := len(a)
	if len(b) > max {
		max = len(b)
	}

	for i := 0; i < max; i++ {
		if i < len(a) {
			if r := a[i]; r.URL != "" {
				if _, dup := seen[r.URL]; !dup {
					seen[r.URL] = struct{}{}
					out = append(out, r)
				}
			}
		}
		if i < len(b) {
			if r := b[i]; r.URL != "" {
				if _, dup := seen[r.URL]; !dup {
					seen[r.URL] = struct{}{}
					out = append(out, r)
				}
			}
		}
	}

	return truncate(out, count)
}

func truncate(results []upstream.SearchResult, count int) []upstream.SearchResult {
	if count > 0 && len(results) > count {
		return results[:count]
	}
	return results
}

func count(p Params) int {
	if p.Count > 0 {
		return p.Count
	}
	return 10
}
