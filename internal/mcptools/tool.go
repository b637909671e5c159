// Package mcptools defines the MCP tool surface (tavily_* and brave_*
// tools), its registry, and the structured errors tool handlers return.
package mcptools

import (
	"context"
	"encoding/json"
	"sync"
)

// ToolDefinition describes one MCP tool's name, description, and schema.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Handler executes a tool call. ToolContext carries the per-request
// identity and correlation data the orchestrator has already resolved.
type Handler func(ctx context.Context, toolCtx *ToolContext, args json.RawMessage) (interface{}, error)

// ToolContext is threaded into every handler invocation. Combined-mode
// dispatch fans a single call out to both upstreams concurrently, so
// mutation of the upstream key id goes through RecordUpstreamKey rather
// than a bare field.
type ToolContext struct {
	ClientTokenID     string
	ClientTokenPrefix string
	CorrelationID     string

	mu            sync.Mutex
	upstreamKeyID string
}

// RecordUpstreamKey records the id of the upstream key a handler used to
// satisfy this call. Safe to call from either goroutine of a combined
// dispatch; the last writer wins.
func (c *ToolContext) RecordUpstreamKey(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstreamKeyID = id
}

// UpstreamKeyID returns the most recently recorded upstream key id, or ""
// if no handler has recorded one yet.
func (c *ToolContext) UpstreamKeyID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upstreamKeyID
}

// ToolDescriptor is the tools/list entry shape.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// CallRequest is a decoded tools/call request.
type CallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ContentBlock is one piece of MCP tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallResult wraps a tool's output in MCP content-block format.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}
