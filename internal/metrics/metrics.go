// Package metrics declares the bridge's Prometheus collectors and the
// registry they're exported from at /admin/api/metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var ToolCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "tool_calls_total",
		Help:      "Total number of tools/call invocations by tool and outcome.",
	},
	[]string{"tool", "outcome"},
)

var ToolCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "bridge",
		Name:      "tool_call_latency_ms",
		Help:      "tools/call end-to-end latency in milliseconds.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	},
	[]string{"tool"},
)

var KeyPoolSelectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "key_pool_selected_total",
		Help:      "Total number of times a key pool selected an active key, by provider and strategy.",
	},
	[]string{"provider", "strategy"},
)

var RateGateWaitMs = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "bridge",
		Name:      "rate_gate_wait_ms",
		Help:      "Time a request spent waiting in the P-B rate gate, in milliseconds.",
		Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000},
	},
)

var RateLimitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the local rate limiter, by scope.",
	},
	[]string{"scope"},
)

// All returns every bridge metric for registration against a
// prometheus.Registerer.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ToolCallsTotal,
		ToolCallLatencyMs,
		KeyPoolSelectedTotal,
		RateGateWaitMs,
		RateLimitedTotal,
	}
}
