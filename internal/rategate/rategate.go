// Package rategate enforces a minimum interval between successive calls to
// a single downstream (Brave Search), serializing callers through a FIFO
// queue rather than rejecting them outright.
package rategate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/metrics"
)

// ErrTimeout is returned when a caller's wait in the queue exceeds its
// MaxWait before its turn arrives.
var ErrTimeout = errors.New("rate_gate_timeout")

// Gate serializes calls to Run so that no two invocations of fn start less
// than MinInterval apart, while preserving strict FIFO order among callers
// that arrive concurrently.
type Gate struct {
	minInterval time.Duration

	mu          sync.Mutex
	lastStartAt time.Time
	tail        chan struct{} // closed channel each waiter blocks on before it
}

// New builds a Gate enforcing minInterval between the start times of
// consecutive calls admitted through Run.
func New(minInterval time.Duration) *Gate {
	g := &Gate{minInterval: minInterval}
	head := make(chan struct{})
	close(head) // first caller has no predecessor to wait on
	g.tail = head
	return g
}

// Run enqueues fn behind any callers already waiting, then invokes it once
// it reaches the head of the queue and MinInterval has elapsed since the
// previous invocation started. If maxWait is positive and the caller's
// queued time exceeds it before its turn arrives, Run returns ErrTimeout
// without invoking fn, and still releases the next waiter.
func (g *Gate) Run(ctx context.Context, maxWait time.Duration, fn func(context.Context) error) error {
	enqueuedAt := time.Now()

	g.mu.Lock()
	myTurn := make(chan struct{})
	predecessor := g.tail
	g.tail = myTurn
	g.mu.Unlock()

	release := func() { close(myTurn) }

	var timeout <-chan time.Time
	if maxWait > 0 {
		waitTimer := time.NewTimer(maxWait)
		defer waitTimer.Stop()
		timeout = waitTimer.C
	}

	select {
	case <-predecessor:
	case <-timeout:
		// Pass the turn on only once the predecessor is done, so FIFO
		// order and serialization hold for the callers behind us.
		go func() { <-predecessor; release() }()
		return ErrTimeout
	case <-ctx.Done():
		release()
		return ctx.Err()
	}

	if maxWait > 0 && time.Since(enqueuedAt) >= maxWait {
		release()
		return ErrTimeout
	}

	g.mu.Lock()
	sleepUntil := g.lastStartAt.Add(g.minInterval)
	now := time.Now()
	var wait time.Duration
	if sleepUntil.After(now) {
		wait = sleepUntil.Sub(now)
	}
	g.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			release()
			return ctx.Err()
		}
	}

	if maxWait > 0 && time.Since(enqueuedAt) >= maxWait {
		release()
		return ErrTimeout
	}

	g.mu.Lock()
	g.lastStartAt = time.Now()
	g.mu.Unlock()

	metrics.RateGateWaitMs.Observe(float64(time.Since(enqueuedAt).Milliseconds()))

	err := fn(ctx)
	release()
	return err
}
