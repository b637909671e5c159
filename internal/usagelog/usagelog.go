// Package usagelog appends one row per tool invocation to a durable
// usage_log table, the source for usage/usage-summary/cost-estimate
// reporting in the admin API.
package usagelog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/mcp-gateway/internal/mcpserver"
)

// Writer implements mcpserver.UsageRecorder against the usage_log table.
type Writer struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Writer {
	return &Writer{DB: db}
}

// Record inserts row. A failure is logged here and the error is returned
// unwrapped; the orchestrator swallows it so a logging outage never fails
// a tool call.
func (w *Writer) Record(ctx context.Context, row mcpserver.UsageRow) error {
	_, err := w.DB.Exec(ctx, `
		INSERT INTO usage_log (ts, tool_name, outcome, latency_ms, client_token_id, client_token_prefix, upstream_key_id, query_hash, error_message, args_json)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)
	`, row.Timestamp, row.ToolName, row.Outcome, row.LatencyMs, row.ClientTokenID, row.ClientTokenPrefix,
		row.UpstreamKeyID, row.QueryHash, row.ErrorMessage, row.ArgsJSON)
	if err != nil {
		log.Error().Err(err).Str("tool", row.ToolName).Msg("writing usage log row failed")
	}
	return err
}

// Summary is one row of the per-tool usage rollup the admin API exposes.
type Summary struct {
	ToolName    string
	CallCount   int64
	ErrorCount  int64
	AvgLatency  float64
	LastCalledAt *int64
}

// SummaryByTool aggregates call counts, error counts, and average
// latency per tool over the trailing window.
func (w *Writer) SummaryByTool(ctx context.Context, sinceUnixMs int64) ([]Summary, error) {
	rows, err := w.DB.Query(ctx, `
		SELECT tool_name,
		       count(*),
		       count(*) FILTER (WHERE outcome != 'success'),
		       avg(latency_ms),
		       extract(epoch FROM max(ts)) * 1000
		FROM usage_log
		WHERE extract(epoch FROM ts) * 1000 >= $1
		GROUP BY tool_name
		ORDER BY tool_name
	`, sinceUnixMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ToolName, &s.CallCount, &s.ErrorCount, &s.AvgLatency, &s.LastCalledAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
