package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docportal.org/internal/audit"
	"docportal.org/internal/ids"
	"docportal.org/internal/obs"
)

var _ audit.Recorder = (*Store)(nil)
var _ audit.Reader = (*Store)(nil)

// Record appends one audit entry outside any enclosing transaction.
func (s *Store) Record(ctx context.Context, entry audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	return appendAudit(ctx, s.db, entry)
}

// execer is satisfied by both *sql.DB and *sql.Tx so audit appends can join
// the mutation's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendAudit(ctx context.Context, db execer, entry audit.Entry) error {
	if err := audit.Validate(entry); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = encoded
	}
	_, err := db.ExecContext(ctx, `
		insert into permission_audit_log
			(id, action, permission, entity_type, entity_id, actor, occurred_at, ip, user_agent, notes, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID,
		entry.Action,
		nullIfEmpty(entry.Permission),
		nullIfEmpty(entry.EntityType),
		nullIfEmpty(entry.EntityID),
		entry.Actor,
		entry.OccurredAt,
		nullIfEmpty(entry.IP),
		nullIfEmpty(entry.UserAgent),
		nullIfEmpty(entry.Notes),
		meta,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	obs.ObserveAuditEntry(entry.Action)
	return nil
}

// Query reads the audit trail with optional filters, newest first.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		conds []string
		args  []any
		idx   = 1
	)
	add := func(cond string, value any) {
		conds = append(conds, fmt.Sprintf(cond, idx))
		args = append(args, value)
		idx++
	}
	if filter.EntityType != "" {
		add("entity_type = $%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Actor != "" {
		add("actor = $%d", filter.Actor)
	}
	if !filter.Since.IsZero() {
		add("occurred_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("occurred_at < $%d", filter.Until)
	}

	query := `
		select id, action, permission, entity_type, entity_id, actor, occurred_at, ip, user_agent, notes, metadata
		from permission_audit_log
	`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by occurred_at desc"
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" limit $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry      audit.Entry
			permission sql.NullString
			entityType sql.NullString
			entityID   sql.NullString
			ip         sql.NullString
			userAgent  sql.NullString
			notes      sql.NullString
			meta       []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.Action, &permission, &entityType, &entityID,
			&entry.Actor, &entry.OccurredAt, &ip, &userAgent, &notes, &meta,
		); err != nil {
			return nil, err
		}
		entry.Permission = permission.String
		entry.EntityType = entityType.String
		entry.EntityID = entityID.String
		entry.IP = ip.String
		entry.UserAgent = userAgent.String
		entry.Notes = notes.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
