package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleUsage returns per-tool usage summaries, windowed by an optional
// ?sinceMinutes= query parameter (defaulting to the trailing 24h).
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	since := parseSinceMinutes(r, 24*60)
	summaries, err := s.Usage.SummaryByTool(r.Context(), since)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "usage_unavailable", err.Error())
		return
	}
	Respond(w, http.StatusOK, summaries)
}

// handleUsageSummary is the same aggregation as handleUsage; kept as a
// distinct route since callers (and the admin UI) treat "/usage" as the
// raw-ish feed and "/usage/summary" as the rollup view, even though both
// are backed by one SQL aggregate query today.
func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	s.handleUsage(w, r)
}

type costEstimateEntry struct {
	ToolName  string `json:"toolName"`
	CallCount int64  `json:"callCount"`
}

// handleCostEstimate reports call volume per tool over the trailing
// window; the bridge has no visibility into per-provider pricing, so
// this is a volume proxy rather than a dollar figure.
func (s *Server) handleCostEstimate(w http.ResponseWriter, r *http.Request) {
	since := parseSinceMinutes(r, 30*24*60)
	summaries, err := s.Usage.SummaryByTool(r.Context(), since)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "usage_unavailable", err.Error())
		return
	}
	out := make([]costEstimateEntry, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, costEstimateEntry{ToolName: sum.ToolName, CallCount: sum.CallCount})
	}
	Respond(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.MetricsGatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func parseSinceMinutes(r *http.Request, def int) int64 {
	q := r.URL.Query().Get("sinceMinutes")
	minutes := def
	if q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			minutes = n
		}
	}
	return time.Now().Add(-time.Duration(minutes) * time.Minute).UnixMilli()
}
