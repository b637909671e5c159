package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAll_RegistersWithoutCollision(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range All() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("registering %T: %v", c, err)
		}
	}
}

func TestToolCallsTotal_Increments(t *testing.T) {
	ToolCallsTotal.Reset()
	ToolCallsTotal.WithLabelValues("tavily_search", "success").Inc()
	ToolCallsTotal.WithLabelValues("tavily_search", "success").Inc()
	ToolCallsTotal.WithLabelValues("brave_web_search", "error").Inc()

	if got := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("tavily_search", "success")); got != 2 {
		t.Errorf("tavily_search/success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("brave_web_search", "error")); got != 1 {
		t.Errorf("brave_web_search/error count = %v, want 1", got)
	}
}

func TestRateLimitedTotal_ScopedByLabel(t *testing.T) {
	RateLimitedTotal.Reset()
	RateLimitedTotal.WithLabelValues("global").Inc()
	RateLimitedTotal.WithLabelValues("token").Inc()
	RateLimitedTotal.WithLabelValues("token").Inc()

	if got := testutil.ToFloat64(RateLimitedTotal.WithLabelValues("global")); got != 1 {
		t.Errorf("global count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RateLimitedTotal.WithLabelValues("token")); got != 2 {
		t.Errorf("token count = %v, want 2", got)
	}
}
