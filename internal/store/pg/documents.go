package pg

import (
	"context"
	"database/sql"
	"errors"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/ids"
)

var _ docs.DocumentStore = (*Store)(nil)
var _ docs.DepartmentProvider = (*Store)(nil)

// GetDocument loads the access-control view of a document with its category.
func (s *Store) GetDocument(ctx context.Context, documentID string) (docs.Document, error) {
	if s.db == nil {
		return docs.Document{}, errors.New("database connection unavailable")
	}
	var (
		doc          docs.Document
		departmentID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select d.id, d.title, d.owned_by, d.created_at,
		       c.id, c.name, c.department_id, c.is_public
		from documents d
		join document_categories c on c.id = d.category_id
		where d.id = $1
	`, documentID).Scan(
		&doc.ID, &doc.Title, &doc.OwnedBy, &doc.CreatedAt,
		&doc.Category.ID, &doc.Category.Name, &departmentID, &doc.Category.IsPublic,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return docs.Document{}, docs.ErrNotFound
	}
	if err != nil {
		return docs.Document{}, err
	}
	doc.Category.DepartmentID = departmentID.String
	return doc, nil
}

// ListDocumentPermissions returns every object-level permission on a document.
func (s *Store) ListDocumentPermissions(ctx context.Context, documentID string) ([]docs.DocumentPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, document_id, user_id, department_id, permission, granted_by, expires_at, is_active, created_at
		from document_permissions
		where document_id = $1
		order by created_at
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []docs.DocumentPermission
	for rows.Next() {
		var (
			p            docs.DocumentPermission
			userID       sql.NullString
			departmentID sql.NullString
			permission   string
			expiresAt    sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.DocumentID, &userID, &departmentID, &permission,
			&p.GrantedBy, &expiresAt, &p.IsActive, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.UserID = userID.String
		p.DepartmentID = departmentID.String
		p.Permission = docs.DocPermission(permission)
		p.ExpiresAt = timePtr(expiresAt)
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateDocumentPermission inserts the permission and its audit entry in one
// transaction. The check constraint enforces the user-xor-department target.
func (s *Store) CreateDocumentPermission(ctx context.Context, p docs.DocumentPermission, entry audit.Entry) (docs.DocumentPermission, error) {
	if s.db == nil {
		return docs.DocumentPermission{}, errors.New("database connection unavailable")
	}
	if p.ID == "" {
		p.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docs.DocumentPermission{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		stored       docs.DocumentPermission
		userID       sql.NullString
		departmentID sql.NullString
		permission   string
		expiresAt    sql.NullTime
	)
	row := tx.QueryRowContext(ctx, `
		insert into document_permissions
			(id, document_id, user_id, department_id, permission, granted_by, expires_at, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, document_id, user_id, department_id, permission, granted_by, expires_at, is_active, created_at
	`,
		p.ID, p.DocumentID, nullIfEmpty(p.UserID), nullIfEmpty(p.DepartmentID),
		string(p.Permission), p.GrantedBy, nullTime(p.ExpiresAt), p.IsActive,
	)
	if err := row.Scan(
		&stored.ID, &stored.DocumentID, &userID, &departmentID, &permission,
		&stored.GrantedBy, &expiresAt, &stored.IsActive, &stored.CreatedAt,
	); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return docs.DocumentPermission{}, docs.ErrConflict
			case pgErrForeignKeyViolation:
				return docs.DocumentPermission{}, docs.ErrNotFound
			case pgErrCheckViolation:
				return docs.DocumentPermission{}, docs.ErrInvalidInput
			}
		}
		return docs.DocumentPermission{}, err
	}
	stored.UserID = userID.String
	stored.DepartmentID = departmentID.String
	stored.Permission = docs.DocPermission(permission)
	stored.ExpiresAt = timePtr(expiresAt)

	if err := appendAudit(ctx, tx, entry); err != nil {
		return docs.DocumentPermission{}, err
	}
	if err := tx.Commit(); err != nil {
		return docs.DocumentPermission{}, err
	}
	return stored, nil
}

// DeactivateDocumentPermission soft-disables an object-level permission.
func (s *Store) DeactivateDocumentPermission(ctx context.Context, permissionID string, entry audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update document_permissions set is_active = false where id = $1
	`, permissionID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return docs.ErrNotFound
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// DepartmentHead answers who heads a department; an unknown or headless
// department simply never matches the department-head rule.
func (s *Store) DepartmentHead(ctx context.Context, departmentID string) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	var head sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select head_id from departments where id = $1 and is_active = true
	`, departmentID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return head.String, nil
}
