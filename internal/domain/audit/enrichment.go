// Package audit stamps the system-managed modification fields.
package audit

import (
	"context"
	"time"

	appctx "docforge/internal/core/context"
	"docforge/internal/metadata"
)

// EnrichUpdated sets updated_at to now and, when the context carries a user,
// updated_by to that user. It returns values for chaining.
func EnrichUpdated(ctx context.Context, values map[string]any, now time.Time) map[string]any {
	values[metadata.FieldUpdatedAt] = now.UTC().Format(time.RFC3339Nano)
	if userID := appctx.GetUserID(ctx); userID != "" {
		values[metadata.FieldUpdatedBy] = userID
	}
	return values
}

// StripSystemFields removes the standard fields and doc_status from an update
// payload; they can only change through the service.
func StripSystemFields(changes map[string]any) map[string]any {
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		if metadata.IsStandardField(k) {
			continue
		}
		out[k] = v
	}
	return out
}
