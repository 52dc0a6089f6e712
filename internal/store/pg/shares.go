package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/ids"
)

var _ docs.ShareStore = (*Store)(nil)

const shareColumns = `id, document_id, share_type, access_level, user_id, department_id,
	public_link_token, link_password_hash, shared_by, shared_at, expires_at, is_active,
	access_count, last_accessed_at, last_accessed_by, allow_download, allow_reshare, notify_on_access`

// CreateShare inserts a share and its audit entry in one transaction. A
// duplicate public-link token surfaces as ErrConflict so the issuer can retry
// with fresh entropy.
func (s *Store) CreateShare(ctx context.Context, share docs.Share, entry audit.Entry) (docs.Share, error) {
	if s.db == nil {
		return docs.Share{}, errors.New("database connection unavailable")
	}
	if share.ID == "" {
		share.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docs.Share{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into document_shares
			(id, document_id, share_type, access_level, user_id, department_id,
			 public_link_token, link_password_hash, shared_by, shared_at, expires_at, is_active,
			 allow_download, allow_reshare, notify_on_access)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		returning `+shareColumns,
		share.ID,
		share.DocumentID,
		string(share.Type),
		share.Level.String(),
		nullIfEmpty(share.UserID),
		nullIfEmpty(share.DepartmentID),
		nullIfEmpty(share.PublicToken),
		nullIfEmpty(share.PasswordHash),
		share.SharedBy,
		share.SharedAt,
		nullTime(share.ExpiresAt),
		share.IsActive,
		share.AllowDownload,
		share.AllowReshare,
		share.NotifyOnAccess,
	)
	stored, err := scanShare(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return docs.Share{}, docs.ErrConflict
			case pgErrForeignKeyViolation:
				return docs.Share{}, docs.ErrNotFound
			case pgErrCheckViolation:
				return docs.Share{}, docs.ErrInvalidInput
			}
		}
		return docs.Share{}, err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return docs.Share{}, err
	}
	if err := tx.Commit(); err != nil {
		return docs.Share{}, err
	}
	return stored, nil
}

// GetShare returns a share by id.
func (s *Store) GetShare(ctx context.Context, shareID string) (docs.Share, error) {
	if s.db == nil {
		return docs.Share{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+shareColumns+`
		from document_shares
		where id = $1
	`, shareID)
	share, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docs.Share{}, docs.ErrNotFound
	}
	return share, err
}

// GetShareByToken resolves a public-link token.
func (s *Store) GetShareByToken(ctx context.Context, token string) (docs.Share, error) {
	if s.db == nil {
		return docs.Share{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+shareColumns+`
		from document_shares
		where public_link_token = $1
	`, token)
	share, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docs.Share{}, docs.ErrNotFound
	}
	return share, err
}

// ListDocumentShares returns every share on a document, newest first.
func (s *Store) ListDocumentShares(ctx context.Context, documentID string) ([]docs.Share, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+shareColumns+`
		from document_shares
		where document_id = $1
		order by shared_at desc
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []docs.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// DeactivateShare soft-disables a share and audits the revoke in one
// transaction; the row stays for the trail.
func (s *Store) DeactivateShare(ctx context.Context, shareID string, entry audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update document_shares set is_active = false where id = $1
	`, shareID)
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

// RecordShareAccess bumps the access counter and stamps last access.
func (s *Store) RecordShareAccess(ctx context.Context, shareID, accessedBy string, at time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update document_shares
		set access_count = access_count + 1,
		    last_accessed_at = $2,
		    last_accessed_by = $3
		where id = $1
	`, shareID, at, nullIfEmpty(accessedBy))
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
	return nil
}

func scanShare(row rowScanner) (docs.Share, error) {
	var (
		share          docs.Share
		shareType      string
		level          string
		userID         sql.NullString
		departmentID   sql.NullString
		token          sql.NullString
		passwordHash   sql.NullString
		expiresAt      sql.NullTime
		lastAccessedAt sql.NullTime
		lastAccessedBy sql.NullString
	)
	if err := row.Scan(
		&share.ID, &share.DocumentID, &shareType, &level, &userID, &departmentID,
		&token, &passwordHash, &share.SharedBy, &share.SharedAt, &expiresAt, &share.IsActive,
		&share.AccessCount, &lastAccessedAt, &lastAccessedBy,
		&share.AllowDownload, &share.AllowReshare, &share.NotifyOnAccess,
	); err != nil {
		return docs.Share{}, err
	}
	share.Type = docs.ShareType(shareType)
	if parsed, ok := docs.ParseAccessLevel(level); ok {
		share.Level = parsed
	}
	share.UserID = userID.String
	share.DepartmentID = departmentID.String
	share.PublicToken = token.String
	share.PasswordHash = passwordHash.String
	share.ExpiresAt = timePtr(expiresAt)
	share.LastAccessedAt = timePtr(lastAccessedAt)
	share.LastAccessedBy = lastAccessedBy.String
	return share, nil
}
