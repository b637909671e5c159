package adminapi

import (
	"net/http"

	"github.com/searchbridge/mcp-gateway/internal/auditlog"
)

// auditEntry builds an auditlog.Entry for an admin mutation, tagging the
// actor with the caller's IP since admin tokens are shared, not per-user.
func auditEntry(r *http.Request, action, resourceType, resourceID string, detail any) auditlog.Entry {
	return auditlog.Entry{
		Actor:        clientIP(r),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
	}
}
