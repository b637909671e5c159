package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Registry holds tool definitions and dispatches tools/call requests.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*toolEntry
	ordering []string
}

type toolEntry struct {
	def     ToolDefinition
	handler Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*toolEntry)}
}

// Register adds a tool definition and its handler.
func (r *Registry) Register(def ToolDefinition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("mcptools: tool name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("mcptools: handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("mcptools: tool %s already registered", def.Name)
	}

	r.tools[def.Name] = &toolEntry{def: def, handler: handler}
	r.ordering = append(r.ordering, def.Name)
	return nil
}

// MustRegister registers a tool, panicking on error — used at init time
// where a registration failure is a programmer error.
func (r *Registry) MustRegister(def ToolDefinition, handler Handler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// List returns descriptors for every tool matching the predicate, in
// registration order. Passing a predicate that always returns true lists
// everything; callers hide tavily_research when research is disabled by
// filtering on def.Name here.
func (r *Registry) List(include func(name string) bool) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]ToolDescriptor, 0, len(r.ordering))
	for _, name := range r.ordering {
		if include != nil && !include(name) {
			continue
		}
		entry := r.tools[name]
		descriptors = append(descriptors, ToolDescriptor{
			Name:        entry.def.Name,
			Description: entry.def.Description,
			InputSchema: entry.def.InputSchema,
		})
	}
	return descriptors
}

// Call invokes a registered tool and wraps its result in MCP content-block
// format. A tool-not-found or handler error both surface as a *ToolError
// so the JSON-RPC layer has one shape to translate.
func (r *Registry) Call(ctx context.Context, toolCtx *ToolContext, req CallRequest) (*CallResult, error) {
	r.mu.RLock()
	entry, exists := r.tools[req.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, NewToolError(ErrCodeMethodNotFound, fmt.Sprintf("tool not found: %s", req.Name), nil)
	}

	result, err := entry.handler(ctx, toolCtx, req.Arguments)
	if err != nil {
		return nil, err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, NewToolError(ErrCodeInternal, "failed to serialize tool result: "+err.Error(), nil)
	}

	return &CallResult{
		Content: []ContentBlock{{Type: "text", Text: string(resultJSON)}},
	}, nil
}

// Get retrieves a tool definition by name, for tests and admin inspection.
func (r *Registry) Get(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists {
		return nil, false
	}
	return &entry.def, true
}
