package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_Do_ClassifiesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Correlation-ID") == "" {
			t.Error("expected X-Correlation-ID header to be set")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, "test")
	req, _ := NewJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Kind != KindOK {
		t.Errorf("Kind = %v, want KindOK", resp.Kind)
	}
}

func TestClient_Do_ClassifiesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, "test")
	req, _ := NewJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Kind != KindRateLimited {
		t.Errorf("Kind = %v, want KindRateLimited", resp.Kind)
	}
}

func TestClient_Do_TripsBreakerAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, "test-breaker")
	for i := 0; i < 5; i++ {
		req, _ := NewJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
		if _, err := c.Do(context.Background(), req); err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
	}

	req, _ := NewJSONRequest(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do after trip: %v", err)
	}
	if resp.Kind != KindProviderError {
		t.Errorf("Kind after breaker trip = %v, want KindProviderError", resp.Kind)
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Errorf("server saw %d requests, want 5 (the sixth must be rejected by the open breaker)", got)
	}
}
