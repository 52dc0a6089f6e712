package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"docportal.org/internal/obs"
)

// LogEvent writes a structured audit log line enriched with request context.
// This is the observability side channel; the durable trail goes through a
// Recorder. Denial events in particular are logged here so no refused access
// disappears silently.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	meta := MetaFromContext(ctx)
	if meta.RequestID != "" {
		entry["request_id"] = meta.RequestID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
