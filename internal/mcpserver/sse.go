package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEStream writes JSON-RPC responses to a single client connection as
// server-sent events.
type SSEStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	eventID int
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSSEStream prepares w for event-stream output and returns a handle for
// sending JSON-RPC responses over it.
func NewSSEStream(ctx context.Context, w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("mcpserver: streaming not supported by response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	streamCtx, cancel := context.WithCancel(ctx)
	return &SSEStream{w: w, flusher: flusher, ctx: streamCtx, cancel: cancel}, nil
}

// Send writes one JSON-RPC message as an SSE "message" event.
func (s *SSEStream) Send(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventID++
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.w, "event: message\n")
	fmt.Fprintf(s.w, "id: %d\n", s.eventID)
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
	return nil
}

// Close releases the stream's context.
func (s *SSEStream) Close() {
	s.cancel()
}

// Done reports when the stream's context has been cancelled.
func (s *SSEStream) Done() <-chan struct{} {
	return s.ctx.Done()
}
