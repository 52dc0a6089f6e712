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
	"docportal.org/internal/perm"
)

var _ perm.TemplateStore = (*Store)(nil)

const templateColumns = `id, name, description, permissions, created_by, is_active, created_at, updated_at`

// CreateTemplate inserts a template and its audit entry in one transaction.
func (s *Store) CreateTemplate(ctx context.Context, tpl perm.Template, entry audit.Entry) (perm.Template, error) {
	if s.db == nil {
		return perm.Template{}, errors.New("database connection unavailable")
	}
	if tpl.ID == "" {
		tpl.ID = ids.New()
	}
	perms, err := encodeKeys(tpl.Permissions)
	if err != nil {
		return perm.Template{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perm.Template{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into permission_templates (id, name, description, permissions, created_by, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning `+templateColumns,
		tpl.ID, tpl.Name, nullIfEmpty(tpl.Description), perms, tpl.CreatedBy, tpl.IsActive,
	)
	stored, err := scanTemplate(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return perm.Template{}, perm.ErrConflict
		}
		return perm.Template{}, err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return perm.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return perm.Template{}, err
	}
	return stored, nil
}

// GetTemplate returns a template by id.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (perm.Template, error) {
	if s.db == nil {
		return perm.Template{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+templateColumns+`
		from permission_templates
		where id = $1
	`, templateID)
	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return perm.Template{}, perm.ErrNotFound
	}
	return tpl, err
}

// ListTemplates returns every template ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]perm.Template, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+templateColumns+`
		from permission_templates
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []perm.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// UpdateTemplate applies field changes and the audit entry transactionally.
func (s *Store) UpdateTemplate(ctx context.Context, templateID string, upd perm.TemplateUpdate, entry audit.Entry) (perm.Template, error) {
	if s.db == nil {
		return perm.Template{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Permissions != nil {
		perms, err := encodeKeys(upd.Permissions)
		if err != nil {
			return perm.Template{}, err
		}
		sets = append(sets, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, perms)
		idx++
	}
	if upd.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.IsActive)
		idx++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perm.Template{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update permission_templates set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, templateID)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return perm.Template{}, perm.ErrConflict
			}
			return perm.Template{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return perm.Template{}, err
		}
		if aff == 0 {
			return perm.Template{}, perm.ErrNotFound
		}
	}

	row := tx.QueryRowContext(ctx, `
		select `+templateColumns+`
		from permission_templates
		where id = $1
	`, templateID)
	stored, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return perm.Template{}, perm.ErrNotFound
	}
	if err != nil {
		return perm.Template{}, err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return perm.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return perm.Template{}, err
	}
	return stored, nil
}

// DeleteTemplate removes a template after appending its audit entry.
func (s *Store) DeleteTemplate(ctx context.Context, templateID string, entry audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from permission_templates where id = $1`, templateID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return perm.ErrNotFound
	}
	return tx.Commit()
}

// TemplateUsage recomputes the distinct count of entities currently holding a
// grant that references the template. It is a derived read, not a counter.
func (s *Store) TemplateUsage(ctx context.Context, templateID string) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(distinct entity_id)
		from permission_grants
		where is_active = true and notes like $1
	`, "%template:"+templateID+"%").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func encodeKeys(keys []perm.Key) ([]byte, error) {
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal template permissions: %w", err)
	}
	return encoded, nil
}

func scanTemplate(row rowScanner) (perm.Template, error) {
	var (
		tpl         perm.Template
		description sql.NullString
		rawPerms    []byte
	)
	if err := row.Scan(
		&tpl.ID, &tpl.Name, &description, &rawPerms,
		&tpl.CreatedBy, &tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt,
	); err != nil {
		return perm.Template{}, err
	}
	tpl.Description = description.String
	var raw []string
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &raw); err != nil {
			return perm.Template{}, fmt.Errorf("decode template permissions: %w", err)
		}
	}
	for _, r := range raw {
		key, err := perm.ParseKey(r)
		if err != nil {
			return perm.Template{}, fmt.Errorf("stored template %s has malformed key %q: %w", tpl.ID, r, err)
		}
		tpl.Permissions = append(tpl.Permissions, key)
	}
	return tpl, nil
}
