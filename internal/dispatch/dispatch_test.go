package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

func fixedFetch(results []upstream.SearchResult, err error) Fetcher {
	return func(ctx context.Context) ([]upstream.SearchResult, error) {
		return results, err
	}
}

func TestDispatch_TavilyOnly(t *testing.T) {
	want := []upstream.SearchResult{{URL: "https://a.example"}}
	got, err := Dispatch(context.Background(), ModeTavilyOnly, Params{}, fixedFetch(want, nil), fixedFetch(nil, errors.New("should not be called")))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 1 || got[0].URL != want[0].URL {
		t.Errorf("got %+v", got)
	}
}

func TestDispatch_BraveOnly_Unavailable(t *testing.T) {
	_, err := Dispatch(context.Background(), ModeBraveOnly, Params{}, fixedFetch(nil, nil), nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestDispatch_Combined_MergeDedupesByURL(t *testing.T) {
	tavily := []upstream.SearchResult{
		{Title: "T1", URL: "https://dup.example", Description: "from tavily"},
		{Title: "T2", URL: "https://only-a.example"},
	}
	brave := []upstream.SearchResult{
		{Title: "B1", URL: "https://dup.example", Description: "from brave"},
		{Title: "B2", URL: "https://only-b.example"},
	}

	got, err := Dispatch(context.Background(), ModeCombined, Params{Count: 10}, fixedFetch(tavily, nil), fixedFetch(brave, nil))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	urls := map[string]int{}
	for _, r := range got {
		urls[r.URL]++
	}
	if urls["https://dup.example"] != 1 {
		t.Errorf("dup.example appeared %d times, want 1", urls["https://dup.example"])
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (deduped), got %+v", len(got), got)
	}

	for _, r := range got {
		if r.URL == "https://dup.example" && r.Description != "from tavily" {
			t.Errorf("expected P-A to take precedence on dup URL, got %q", r.Description)
		}
	}
}

func TestDispatch_Combined_TruncatesToCount(t *testing.T) {
	var tavily []upstream.SearchResult
	for i := 0; i < 20; i++ {
		tavily = append(tavily, upstream.SearchResult{URL: "https://a.example/" + string(rune('a'+i))})
	}

	got, err := Dispatch(context.Background(), ModeCombined, Params{Count: 10}, fixedFetch(tavily, nil), fixedFetch(nil, nil))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len(got) = %d, want 10", len(got))
	}
}

func TestDispatch_Combined_OneSideFails(t *testing.T) {
	want := []upstream.SearchResult{{URL: "https://a.example"}}
	got, err := Dispatch(context.Background(), ModeCombined, Params{Count: 10}, fixedFetch(want, nil), fixedFetch(nil, errors.New("brave down")))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %+v, want tavily's single result", got)
	}
}

func TestDispatch_Combined_BothSidesFail(t *testing.T) {
	_, err := Dispatch(context.Background(), ModeCombined, Params{}, fixedFetch(nil, errors.New("a down")), fixedFetch(nil, errors.New("b down")))
	if !errors.Is(err, ErrBothSourcesFailed) {
		t.Fatalf("err = %v, want ErrBothSourcesFailed", err)
	}
}

func TestDispatch_Combined_OffsetGreaterThanZeroUsesBraveOnly(t *testing.T) {
	braveCalled := false
	tavilyCalled := false

	tavily := func(ctx context.Context) ([]upstream.SearchResult, error) {
		tavilyCalled = true
		return nil, nil
	}
	brave := func(ctx context.Context) ([]upstream.SearchResult, error) {
		braveCalled = true
		return []upstream.SearchResult{{URL: "https://b.example"}}, nil
	}

	_, err := Dispatch(context.Background(), ModeCombined, Params{Offset: 10}, tavily, brave)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if tavilyCalled {
		t.Error("P-A should not be called when offset > 0")
	}
	if !braveCalled {
		t.Error("P-B should be called when offset > 0")
	}
}

func TestDispatch_BravePreferTavilyFallback_FallsBackOnRateLimit(t *testing.T) {
	brave := fixedFetch(nil, &upstream.ClassifiedError{Kind: upstream.KindRateLimited})
	want := []upstream.SearchResult{{URL: "https://fallback.example"}}
	tavily := fixedFetch(want, nil)

	got, err := Dispatch(context.Background(), ModeBravePreferTavilyBackup, Params{}, tavily, brave)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 1 || got[0].URL != want[0].URL {
		t.Errorf("got %+v, want fallback result", got)
	}
}

func TestDispatch_BravePreferTavilyFallback_FallsBackOnRateGateTimeout(t *testing.T) {
	brave := fixedFetch(nil, rategate.ErrTimeout)
	want := []upstream.SearchResult{{URL: "https://fallback.example"}}
	tavily := fixedFetch(want, nil)

	got, err := Dispatch(context.Background(), ModeBravePreferTavilyBackup, Params{}, tavily, brave)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestDispatch_BravePreferTavilyFallback_NoFallbackOnOtherErrors(t *testing.T) {
	wantErr := errors.New("some unrelated error")
	brave := fixedFetch(nil, wantErr)
	tavily := fixedFetch([]upstream.SearchResult{{URL: "https://should-not-be-used.example"}}, nil)

	_, err := Dispatch(context.Background(), ModeBravePreferTavilyBackup, Params{}, tavily, brave)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v (no fallback for unrecognised error kinds)", err, wantErr)
	}
}
