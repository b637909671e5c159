package settingscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[Key]string
	calls  int32
	failN  int32 // fail the next N GetSetting calls
}

func (s *fakeStore) GetSetting(ctx context.Context, key Key) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return "", errors.New("backend unavailable")
	}
	v, ok := s.values[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (s *fakeStore) SetSetting(ctx context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[Key]string)
	}
	s.values[key] = value
	return nil
}

func TestGet_CachesWithinTTL(t *testing.T) {
	store := &fakeStore{values: map[Key]string{KeySearchSourceMode: "combined"}}
	c := New(store, time.Hour, nil)

	for i := 0; i < 5; i++ {
		v, err := c.Get(context.Background(), KeySearchSourceMode)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != "combined" {
			t.Errorf("Get = %q, want combined", v)
		}
	}
	if atomic.LoadInt32(&store.calls) != 1 {
		t.Errorf("store.calls = %d, want 1 (subsequent reads should hit cache)", store.calls)
	}
}

func TestGet_RefreshesAfterExpiry(t *testing.T) {
	store := &fakeStore{values: map[Key]string{KeySearchSourceMode: "combined"}}
	c := New(store, 10*time.Millisecond, nil)

	if _, err := c.Get(context.Background(), KeySearchSourceMode); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := c.Get(context.Background(), KeySearchSourceMode); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if atomic.LoadInt32(&store.calls) != 2 {
		t.Errorf("store.calls = %d, want 2", store.calls)
	}
}

func TestGet_CoalescesConcurrentRefreshes(t *testing.T) {
	store := &fakeStore{values: map[Key]string{KeySearchSourceMode: "combined"}}
	c := New(store, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), KeySearchSourceMode); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&store.calls) != 1 {
		t.Errorf("store.calls = %d, want 1 (concurrent misses should coalesce)", store.calls)
	}
}

func TestGet_FallsBackToLastKnownOnRefreshFailure(t *testing.T) {
	store := &fakeStore{values: map[Key]string{KeySearchSourceMode: "combined"}}
	c := New(store, 10*time.Millisecond, nil)

	if _, err := c.Get(context.Background(), KeySearchSourceMode); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	store.failN = 1

	v, err := c.Get(context.Background(), KeySearchSourceMode)
	if err != nil {
		t.Fatalf("Get after refresh failure: %v", err)
	}
	if v != "combined" {
		t.Errorf("Get = %q, want stale value combined", v)
	}
}

func TestGet_UsesConfiguredFallbackWhenNeverCached(t *testing.T) {
	store := &fakeStore{failN: 10}
	c := New(store, time.Hour, map[Key]string{KeySearchSourceMode: "brave_prefer_tavily_fallback"})

	v, err := c.Get(context.Background(), KeySearchSourceMode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "brave_prefer_tavily_fallback" {
		t.Errorf("Get = %q, want configured fallback", v)
	}
}

func TestSet_OverwritesCacheImmediately(t *testing.T) {
	store := &fakeStore{values: map[Key]string{KeySearchSourceMode: "combined"}}
	c := New(store, time.Hour, nil)

	if _, err := c.Get(context.Background(), KeySearchSourceMode); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := c.Set(context.Background(), KeySearchSourceMode, "brave_only"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := c.Get(context.Background(), KeySearchSourceMode)
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if v != "brave_only" {
		t.Errorf("Get after Set = %q, want brave_only", v)
	}
}
