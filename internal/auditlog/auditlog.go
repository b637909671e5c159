// Package auditlog appends one row per admin-API mutation (key/token
// create, update, revoke, import) to a durable audit_log table.
package auditlog

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Writer persists audit entries against the audit_log table.
type Writer struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Writer {
	return &Writer{DB: db}
}

// Entry describes a single admin action worth recording.
type Entry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Detail       any
}

// Record inserts entry, logging (but not failing the caller's request
// on) a write error — the admin action itself has already succeeded by
// the time this is called.
func (w *Writer) Record(ctx context.Context, e Entry) {
	var detailJSON []byte
	if e.Detail != nil {
		b, err := json.Marshal(e.Detail)
		if err == nil {
			detailJSON = b
		}
	}

	_, err := w.DB.Exec(ctx, `
		INSERT INTO audit_log (ts, actor, action, resource_type, resource_id, detail_json)
		VALUES (now(), $1, $2, $3, NULLIF($4, ''), $5)
	`, e.Actor, e.Action, e.ResourceType, e.ResourceID, detailJSON)
	if err != nil {
		log.Error().Err(err).Str("action", e.Action).Msg("writing audit log entry failed")
	}
}
