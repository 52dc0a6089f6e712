package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docportal.org/internal/audit"
	"docportal.org/internal/ids"
	"docportal.org/internal/perm"
)

var _ perm.GrantStore = (*Store)(nil)

const grantColumns = `id, entity_type, entity_id, permission, granted_by, granted_at, expires_at, is_active, notes`

// UpsertGrant creates or reactivates the grant for (entity_type, entity_id,
// permission) in one statement guarded by the uniqueness constraint, and
// appends the audit entry in the same transaction.
func (s *Store) UpsertGrant(ctx context.Context, grant perm.Grant, entry audit.Entry) (perm.Grant, error) {
	if s.db == nil {
		return perm.Grant{}, errors.New("database connection unavailable")
	}
	if grant.ID == "" {
		grant.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perm.Grant{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into permission_grants
			(id, entity_type, entity_id, permission, permission_category, granted_by, granted_at, expires_at, is_active, notes)
		values ($1, $2, $3, $4, $5, $6, $7, $8, true, $9)
		on conflict (entity_type, entity_id, permission) do update
		set is_active  = true,
		    granted_by = excluded.granted_by,
		    granted_at = excluded.granted_at,
		    expires_at = excluded.expires_at,
		    notes      = excluded.notes
		returning `+grantColumns,
		grant.ID,
		string(grant.EntityType),
		grant.EntityID,
		grant.Permission.String(),
		grant.Permission.Category,
		grant.GrantedBy,
		grant.GrantedAt,
		nullTime(grant.ExpiresAt),
		nullIfEmpty(grant.Notes),
	)
	stored, err := scanGrant(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return perm.Grant{}, perm.ErrNotFound
		}
		return perm.Grant{}, err
	}

	if err := appendAudit(ctx, tx, entry); err != nil {
		return perm.Grant{}, err
	}
	if err := tx.Commit(); err != nil {
		return perm.Grant{}, err
	}
	return stored, nil
}

// DeleteGrant appends the revoke audit entry capturing prior state, then
// hard-deletes the row. Both happen in one transaction.
func (s *Store) DeleteGrant(ctx context.Context, grantID string, entry audit.Entry) error {
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
	res, err := tx.ExecContext(ctx, `delete from permission_grants where id = $1`, grantID)
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

// GetGrant returns a single grant by id.
func (s *Store) GetGrant(ctx context.Context, grantID string) (perm.Grant, error) {
	if s.db == nil {
		return perm.Grant{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from permission_grants
		where id = $1
	`, grantID)
	grant, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return perm.Grant{}, perm.ErrNotFound
	}
	return grant, err
}

// ListEntityGrants returns every grant held by one entity.
func (s *Store) ListEntityGrants(ctx context.Context, entityType perm.EntityType, entityID string) ([]perm.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+grantColumns+`
		from permission_grants
		where entity_type = $1 and entity_id = $2
		order by permission
	`, string(entityType), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

// GrantsForPrincipal returns active grants targeting the user directly or any
// of the given departments.
func (s *Store) GrantsForPrincipal(ctx context.Context, userID string, departmentIDs []string) ([]perm.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + grantColumns + `
		from permission_grants
		where is_active = true and (
			(entity_type = 'user' and entity_id = $1)`
	args := []any{userID}
	if len(departmentIDs) > 0 {
		placeholders := make([]string, len(departmentIDs))
		for i, id := range departmentIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, id)
		}
		query += fmt.Sprintf(`
			or (entity_type = 'department' and entity_id in (%s))`, strings.Join(placeholders, ", "))
	}
	query += `
		)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (perm.Grant, error) {
	var (
		grant      perm.Grant
		entityType string
		rawKey     string
		expiresAt  sql.NullTime
		notes      sql.NullString
	)
	if err := row.Scan(
		&grant.ID, &entityType, &grant.EntityID, &rawKey,
		&grant.GrantedBy, &grant.GrantedAt, &expiresAt, &grant.IsActive, &notes,
	); err != nil {
		return perm.Grant{}, err
	}
	key, err := perm.ParseKey(rawKey)
	if err != nil {
		return perm.Grant{}, fmt.Errorf("stored grant %s has malformed key %q: %w", grant.ID, rawKey, err)
	}
	grant.EntityType = perm.EntityType(entityType)
	grant.Permission = key
	grant.ExpiresAt = timePtr(expiresAt)
	grant.Notes = notes.String
	return grant, nil
}

func collectGrants(rows *sql.Rows) ([]perm.Grant, error) {
	var grants []perm.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}
