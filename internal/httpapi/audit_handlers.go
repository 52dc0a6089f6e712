package httpapi

import (
	"net/http"
	"strings"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/perm"
)

var permViewAnalytics = perm.MustKey("system.view_analytics")

type auditEntryResponse struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Permission string            `json:"permission,omitempty"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Actor      string            `json:"actor"`
	OccurredAt time.Time         `json:"occurred_at"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// handleAuditQuery serves the read side of the audit trail. Entries are never
// mutated through the API; there is no write surface here.
func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, permViewAnalytics) {
		return
	}

	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter := audit.Filter{
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Action:     strings.TrimSpace(q.Get("action")),
		Actor:      strings.TrimSpace(q.Get("actor")),
		Limit:      limit,
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	if raw := strings.TrimSpace(q.Get("until")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "until must be RFC 3339")
			return
		}
		filter.Until = t
	}

	entries, err := a.auditLog.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	items := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditEntryResponse{
			ID:         e.ID,
			Action:     e.Action,
			Permission: e.Permission,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Actor:      e.Actor,
			OccurredAt: e.OccurredAt,
			IP:         e.IP,
			UserAgent:  e.UserAgent,
			Notes:      e.Notes,
			Metadata:   e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
