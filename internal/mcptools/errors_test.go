package mcptools

import (
	"testing"

	"github.com/searchbridge/mcp-gateway/internal/dispatch"
	"github.com/searchbridge/mcp-gateway/internal/keypool"
	"github.com/searchbridge/mcp-gateway/internal/rategate"
	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

func TestWrapUpstreamError_Classified(t *testing.T) {
	err := WrapUpstreamError(&upstream.ClassifiedError{Kind: upstream.KindRateLimited, Message: "too fast"})
	te, ok := err.(*ToolError)
	if !ok {
		t.Fatalf("err = %T", err)
	}
	if te.Code != ErrCodeRateLimited {
		t.Errorf("Code = %v, want ErrCodeRateLimited", te.Code)
	}
}

func TestWrapUpstreamError_SentinelErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{keypool.ErrNoActiveKeys, ErrCodeNoActiveKeys},
		{dispatch.ErrSourceUnavailable, ErrCodeSourceUnavailable},
		{dispatch.ErrBothSourcesFailed, ErrCodeBothSourcesFailed},
		{rategate.ErrTimeout, ErrCodeRateGateTimeout},
	}
	for _, tc := range cases {
		err := WrapUpstreamError(tc.err)
		te, ok := err.(*ToolError)
		if !ok {
			t.Fatalf("err = %T for %v", err, tc.err)
		}
		if te.Code != tc.want {
			t.Errorf("for %v: Code = %v, want %v", tc.err, te.Code, tc.want)
		}
	}
}

func TestToJSONRPCError_CodeMapping(t *testing.T) {
	invalidParams := NewToolError(ErrCodeInvalidParams, "bad", nil)
	code, _, _ := invalidParams.ToJSONRPCError()
	if code != -32602 {
		t.Errorf("code = %d, want -32602", code)
	}

	notFound := NewToolError(ErrCodeMethodNotFound, "missing", nil)
	code, _, _ = notFound.ToJSONRPCError()
	if code != -32601 {
		t.Errorf("code = %d, want -32601", code)
	}

	internal := NewToolError(ErrCodeInternal, "boom", nil)
	code, _, _ = internal.ToJSONRPCError()
	if code != -32603 {
		t.Errorf("code = %d, want -32603", code)
	}
}
