package mcptools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/searchbridge/mcp-gateway/internal/dispatch"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

// ErrorCode categorises a tool failure for JSON-RPC translation.
type ErrorCode string

const (
	ErrCodeInvalidParams    ErrorCode = "INVALID_PARAMS"
	ErrCodeNoActiveKeys     ErrorCode = "NO_ACTIVE_KEYS"
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeRateGateTimeout  ErrorCode = "RATE_GATE_TIMEOUT"
	ErrCodeProviderError    ErrorCode = "PROVIDER_ERROR"
	ErrCodeBothSourcesFailed ErrorCode = "BOTH_SOURCES_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotFound   ErrorCode = "METHOD_NOT_FOUND"
)

// ToolError is a structured error from tool execution.
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewToolError builds a ToolError with optional structured data.
func NewToolError(code ErrorCode, message string, data map[string]any) *ToolError {
	return &ToolError{Code: code, Message: message, Data: data}
}

// WrapUpstreamError classifies the error kinds produced by keypool,
// dispatch, and rategate into a ToolError, so every tool handler shares
// one translation path instead of reimplementing the switch.
func WrapUpstreamError(err error) error {
	if err == nil {
		return nil
	}

	var classified *upstream.ClassifiedError
	if errors.As(err, &classified) {
		switch classified.Kind {
		case upstream.KindRateLimited:
			return NewToolError(ErrCodeRateLimited, classified.Message, nil)
		case upstream.KindAuthFailed:
			return NewToolError(ErrCodeProviderError, "upstream rejected the API key", nil)
		case upstream.KindInvalidResponse:
			return NewToolError(ErrCodeProviderError, "upstream returned an unparseable response", nil)
		default:
			return NewToolError(ErrCodeProviderError, classified.Message, nil)
		}
	}

	switch {
	case errors.Is(err, keypool.ErrNoActiveKeys):
		return NewToolError(ErrCodeNoActiveKeys, "no active upstream key is available", nil)
	case errors.Is(err, dispatch.ErrSourceUnavailable):
		return NewToolError(ErrCodeSourceUnavailable, "the requested source has no active key", nil)
	case errors.Is(err, dispatch.ErrBothSourcesFailed):
		return NewToolError(ErrCodeBothSourcesFailed, "both sources failed", nil)
	case errors.Is(err, rategate.ErrTimeout):
		return NewToolError(ErrCodeRateGateTimeout, "rate gate wait exceeded its deadline", nil)
	default:
		return NewToolError(ErrCodeInternal, err.Error(), nil)
	}
}

// ToJSONRPCError maps a ToolError onto a JSON-RPC 2.0 error code, message,
// and optional data payload.
func (e *ToolError) ToJSONRPCError() (int, string, json.RawMessage) {
	var code int
	switch e.Code {
	case ErrCodeInvalidParams:
		code = -32602
	case ErrCodeMethodNotFound:
		code = -32601
	default:
		code = -32603
	}

	var data json.RawMessage
	if e.Data != nil {
		b, _ := json.Marshal(e.Data)
		data = b
	}
	return code, e.Message, data
}
