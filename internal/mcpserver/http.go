package mcpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/clienttoken"
	"github.com/searchbridge/mcp-gateway/internal/mcptools"
)

const (
	headerSessionID = "Mcp-Session-Id"
	protocolVersion = "2025-06-18"
)

// researchEnabledFunc reports whether tavily_research should be listed; a
// func keeps Handler decoupled from the settings cache package.
type researchEnabledFunc func() bool

// Handler serves the /mcp endpoint: initialize, tools/list, tools/call,
// SSE streaming, and session teardown.
type Handler struct {
	Orchestrator    *Orchestrator
	Sessions        *SessionManager
	EnableQueryAuth bool
	AllowedOrigins  []string
	ResearchEnabled researchEnabledFunc
}

// ServeHTTP dispatches to the POST/GET/DELETE behaviors of the single
// /mcp route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) originAllowed(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Handler) bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if h.EnableQueryAuth {
		return r.URL.Query().Get("token")
	}
	return ""
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "invalid jsonrpc version", http.StatusBadRequest)
		return
	}

	record, err := h.Orchestrator.Authenticate(r.Context(), h.bearerToken(r))
	if err != nil {
		h.writeAuthError(w, req.ID, err)
		return
	}

	if req.Method == "initialize" {
		h.handleInitialize(w, &req, record)
		return
	}

	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		writeError(w, req.ID, CodeInvalidRequest, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}
	if _, err := h.Sessions.Get(sessionID); err != nil {
		writeError(w, req.ID, CodeInvalidRequest, "Session not found", http.StatusBadRequest)
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(w, &req)
	case "tools/call":
		h.handleToolsCall(w, r, &req, record)
	default:
		if req.IsNotification() {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeError(w, req.ID, CodeMethodNotFound, "method not found: "+req.Method, http.StatusOK)
	}
}

func (h *Handler) handleInitialize(w http.ResponseWriter, req *Request, record *clienttoken.Record) {
	session := h.Sessions.Create(record.ID)

	w.Header().Set(headerSessionID, session.ID)
	w.Header().Set("Content-Type", "application/json")

	result := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		"serverInfo":      map[string]interface{}{"name": "mcp-gateway", "version": "0.1.0"},
	}
	json.NewEncoder(w).Encode(NewResultResponse(req.ID, result))
}

func (h *Handler) handleToolsList(w http.ResponseWriter, req *Request) {
	includeResearch := h.ResearchEnabled == nil || h.ResearchEnabled()
	descriptors := h.Orchestrator.Registry.List(func(name string) bool {
		if name == "tavily_research" {
			return includeResearch
		}
		return true
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NewResultResponse(req.ID, map[string]interface{}{"tools": descriptors}))
}

func (h *Handler) handleToolsCall(w http.ResponseWriter, r *http.Request, req *Request, record *clienttoken.Record) {
	start := time.Now()

	if err := h.Orchestrator.CheckRateLimits(record.ID); err != nil {
		h.writeRateLimitError(w, req.ID, err)
		return
	}

	var callReq mcptools.CallRequest
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		writeError(w, req.ID, CodeInvalidParams, "invalid tools/call params", http.StatusOK)
		return
	}

	provider := providerForTool(callReq.Name)
	if err := h.Orchestrator.CheckPreflight(r.Context(), provider); err != nil {
		h.writePreflightError(w, req.ID, err)
		return
	}

	if err := h.Orchestrator.CheckToolAllowed(record, callReq.Name); err != nil {
		writeError(w, req.ID, CodeInvalidRequest, err.Error(), http.StatusForbidden)
		return
	}

	toolCtx := &mcptools.ToolContext{
		ClientTokenID:     record.ID,
		ClientTokenPrefix: record.Prefix,
	}
	result, err := h.Orchestrator.Registry.Call(r.Context(), toolCtx, callReq)

	latency := time.Since(start)
	outcome := "success"
	var errMsg string
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
	}
	h.Orchestrator.RecordUsage(r.Context(), UsageRow{
		Timestamp:         time.Now(),
		ToolName:          callReq.Name,
		Outcome:           outcome,
		LatencyMs:         latency.Milliseconds(),
		ClientTokenID:     record.ID,
		ClientTokenPrefix: record.Prefix,
		QueryHash:         h.Orchestrator.HashQuery(string(callReq.Arguments)),
		ArgsJSON:          req.Params,
		ErrorMessage:      errMsg,
		UpstreamKeyID:     toolCtx.UpstreamKeyID(),
	})

	if err != nil {
		h.writeToolError(w, req.ID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NewResultResponse(req.ID, result))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		http.Error(w, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}
	if _, err := h.Sessions.Get(sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusBadRequest)
		return
	}

	stream, err := NewSSEStream(r.Context(), w)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusNotImplemented)
		return
	}
	defer stream.Close()

	<-r.Context().Done()
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID != "" {
		h.Sessions.Delete(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func providerForTool(name string) string {
	if strings.HasPrefix(name, "brave_") {
		return "brave"
	}
	return "tavily"
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(id, code, message, nil))
}

func (h *Handler) writeAuthError(w http.ResponseWriter, id json.RawMessage, err error) {
	switch {
	case errors.Is(err, ErrAuthMissing):
		w.Header().Set("WWW-Authenticate", `Bearer`)
		writeError(w, id, CodeInvalidRequest, "Missing Authorization: Bearer <token>", http.StatusUnauthorized)
	default:
		writeError(w, id, CodeInvalidRequest, "Unauthorized", http.StatusUnauthorized)
	}
}

func (h *Handler) writeRateLimitError(w http.ResponseWriter, id json.RawMessage, err error) {
	var rl *ErrRateLimited
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterMs/1000, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":        "Rate limit exceeded",
			"retryAfterMs": rl.RetryAfterMs,
		})
		return
	}
	writeError(w, id, CodeInternalError, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writePreflightError(w http.ResponseWriter, id json.RawMessage, err error) {
	var pe *ErrPreflightExhausted
	if errors.As(err, &pe) {
		w.Header().Set("Retry-After", strconv.FormatInt(pe.RetryAfterMs/1000, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":        "No keys with credits",
			"retryAfterMs": pe.RetryAfterMs,
		})
		return
	}
	log.Error().Err(err).Msg("preflight check failed")
	writeError(w, id, CodeInternalError, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeToolError(w http.ResponseWriter, id json.RawMessage, err error) {
	var toolErr *mcptools.ToolError
	if errors.As(err, &toolErr) {
		code, message, data := toolErr.ToJSONRPCError()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(NewErrorResponse(id, code, message, data))
		return
	}
	log.Error().Err(err).Msg("tool call failed")
	writeError(w, id, CodeInternalError, "Internal server error", http.StatusInternalServerError)
}
