package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Actions recorded in the permission audit trail.
const (
	ActionGrant          = "grant"
	ActionRevoke         = "revoke"
	ActionDeny           = "deny"
	ActionTemplateCreate = "template_create"
	ActionTemplateUpdate = "template_update"
	ActionTemplateDelete = "template_delete"
	ActionTemplateApply  = "template_apply"
	ActionShareCreate    = "share_create"
	ActionShareRevoke    = "share_revoke"
	ActionShareAccess    = "share_access"
	ActionSettingsUpdate = "settings_update"
	ActionBackup         = "backup"
)

// Entry is one immutable line of the audit trail. Entries are never updated
// or deleted once written.
type Entry struct {
	ID         string
	Action     string
	Permission string
	EntityType string
	EntityID   string
	Actor      string
	OccurredAt time.Time
	IP         string
	UserAgent  string
	Notes      string
	Metadata   map[string]string
}

// Recorder appends entries to the durable audit store. Implementations must
// confirm the write before the enclosing mutation reports success.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Validate checks the minimum shape of an entry before it is persisted.
func Validate(entry Entry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("audit: action is required")
	}
	if strings.TrimSpace(entry.Actor) == "" {
		return fmt.Errorf("audit: actor is required")
	}
	return nil
}

// RequestMeta carries per-request origin data into audit entries.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaContextKey struct{}

// WithRequestMeta attaches request origin data to the context for audit writes.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// MetaFromContext extracts request origin data if it was previously attached.
func MetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if meta, ok := ctx.Value(metaContextKey{}).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}

// Enrich fills an entry's origin fields and timestamp from the context.
func Enrich(ctx context.Context, entry Entry) Entry {
	meta := MetaFromContext(ctx)
	if entry.IP == "" {
		entry.IP = meta.IP
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if meta.RequestID != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]string{}
		}
		if _, ok := entry.Metadata["request_id"]; !ok {
			entry.Metadata["request_id"] = meta.RequestID
		}
	}
	return entry
}

// Filter narrows audit queries.
type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	Actor      string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Reader queries the audit trail.
type Reader interface {
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}
