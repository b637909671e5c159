package mcpserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session tracks one MCP client connection across a sequence of HTTP
// requests, identified by the mcp-session-id header.
type Session struct {
	ID            string
	ClientTokenID string
	CreatedAt     time.Time
	LastSeen      time.Time
}

// SessionManager tracks active sessions and garbage-collects ones idle
// past idleTimeout.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idle     time.Duration

	stop chan struct{}
}

// NewSessionManager builds a SessionManager and starts its background
// idle-sweep goroutine.
func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		idle:     idleTimeout,
		stop:     make(chan struct{}),
	}
	go sm.sweepExpired()
	return sm
}

// Create starts a new session for clientTokenID after a successful
// initialize handshake.
func (sm *SessionManager) Create(clientTokenID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s := &Session{
		ID:            uuid.NewString(),
		ClientTokenID: clientTokenID,
		CreatedAt:     time.Now(),
		LastSeen:      time.Now(),
	}
	sm.sessions[s.ID] = s
	return s
}

// Get retrieves a session by ID and bumps its last-seen time, so a
// resumed session (GET reconnecting to an existing mcp-session-id) stays
// alive as long as requests keep arriving.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("mcpserver: session %q not found", id)
	}
	s.LastSeen = time.Now()
	return s, nil
}

// Delete removes a session, e.g. on an explicit DELETE /mcp.
func (sm *SessionManager) Delete(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Close stops the background sweep goroutine.
func (sm *SessionManager) Close() {
	close(sm.stop)
}

func (sm *SessionManager) sweepExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.mu.Lock()
			now := time.Now()
			expired := 0
			for id, s := range sm.sessions {
				if now.Sub(s.LastSeen) > sm.idle {
					delete(sm.sessions, id)
					expired++
				}
			}
			sm.mu.Unlock()
			if expired > 0 {
				log.Info().Int("count", expired).Msg("swept expired mcp sessions")
			}
		case <-sm.stop:
			return
		}
	}
}
