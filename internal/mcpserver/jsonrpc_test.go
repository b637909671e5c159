package mcpserver

import (
	"encoding/json"
	"testing"
)

func TestRequest_IsNotification(t *testing.T) {
	withID := Request{ID: json.RawMessage(`1`)}
	if withID.IsNotification() {
		t.Error("request with id should not be a notification")
	}

	withoutID := Request{}
	if !withoutID.IsNotification() {
		t.Error("request without id should be a notification")
	}
}

func TestNewErrorResponse_RoundTrip(t *testing.T) {
	resp := NewErrorResponse(json.RawMessage(`5`), CodeMethodNotFound, "not found", nil)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Response
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != CodeMethodNotFound {
		t.Errorf("decoded.Error = %+v", decoded.Error)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %q, want 2.0", decoded.JSONRPC)
	}
}

func TestNewResultResponse(t *testing.T) {
	resp := NewResultResponse(json.RawMessage(`"abc"`), map[string]int{"n": 1})
	if resp.Error != nil {
		t.Error("result response should have no error")
	}
	if resp.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %q", resp.JSONRPC)
	}
}
