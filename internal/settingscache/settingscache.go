// Package settingscache provides a short-TTL, single-flight-coalesced
// cache over the handful of server settings that change selection and
// routing behavior at request time.
package settingscache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key names the recognised server settings.
type Key string

const (
	KeyTavilyKeySelectionStrategy Key = "tavilyKeySelectionStrategy"
	KeySearchSourceMode           Key = "searchSourceMode"
	KeyResearchEnabled            Key = "researchEnabled"
)

// Store is the durable settings backend; satisfied by internal/postgres.
type Store interface {
	GetSetting(ctx context.Context, key Key) (string, error)
	SetSetting(ctx context.Context, key Key, value string) error
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache fronts Store with a TTL cache whose concurrent refreshes for the
// same key are coalesced via singleflight, falling back to the last known
// value on refresh failure.
type Cache struct {
	store Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[Key]entry

	group singleflight.Group

	// fallback supplies a default when no value has ever been cached and
	// a refresh fails (e.g. first read racing a down database).
	fallback map[Key]string
}

// New builds a Cache with the given refresh TTL and default fallbacks for
// first-read failures.
func New(store Store, ttl time.Duration, fallback map[Key]string) *Cache {
	return &Cache{
		store:    store,
		ttl:      ttl,
		entries:  make(map[Key]entry),
		fallback: fallback,
	}
}

// Get returns the current value for key, refreshing from the store if the
// cached value has expired.
func (c *Cache) Get(ctx context.Context, key Key) (string, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		return e.value, nil
	}

	v, err, _ := c.group.Do(string(key), func() (interface{}, error) {
		val, err := c.store.GetSetting(ctx, key)
		if err != nil {
			c.mu.RLock()
			stale, hadStale := c.entries[key]
			c.mu.RUnlock()

			fallback := ""
			if hadStale {
				fallback = stale.value
			} else if fb, ok := c.fallback[key]; ok {
				fallback = fb
			} else {
				return "", fmt.Errorf("settingscache: no value available for %q: %w", key, err)
			}

			c.mu.Lock()
			c.entries[key] = entry{value: fallback, expiresAt: time.Now().Add(shortRetryTTL(c.ttl))}
			c.mu.Unlock()
			return fallback, nil
		}

		c.mu.Lock()
		c.entries[key] = entry{value: val, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Set writes a new value through the store and immediately publishes it to
// the cache, bypassing the TTL.
func (c *Cache) Set(ctx context.Context, key Key, value string) error {
	if err := c.store.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("settingscache: writing %q: %w", key, err)
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// shortRetryTTL gives a refresh failure a much shorter grace period than
// a healthy read, so the next caller retries soon rather than waiting out
// the full TTL on stale/fallback data.
func shortRetryTTL(ttl time.Duration) time.Duration {
	short := ttl / 4
	if short < 250*time.Millisecond {
		short = 250 * time.Millisecond
	}
	return short
}
