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
	"docportal.org/internal/settings"
)

var _ settings.Store = (*Store)(nil)

const settingsColumns = `site_name, max_file_size_mb, allowed_file_types,
	enable_document_sharing, require_document_approval, auto_backup_enabled,
	backup_frequency, backup_retention_days, password_expiry_days,
	max_login_attempts, updated_at`

// GetSettings reads the singleton settings row.
func (s *Store) GetSettings(ctx context.Context) (settings.Settings, error) {
	if s.db == nil {
		return settings.Settings{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+settingsColumns+`
		from system_settings
		where id = 1
	`)
	out, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, settings.ErrNotFound
	}
	return out, err
}

// UpdateSettings applies the changed fields to the singleton row and writes
// the audit entry in the same transaction.
func (s *Store) UpdateSettings(ctx context.Context, upd settings.Update, entry audit.Entry) (settings.Settings, error) {
	if s.db == nil {
		return settings.Settings{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.SiteName != nil {
		sets = append(sets, fmt.Sprintf("site_name = $%d", idx))
		args = append(args, *upd.SiteName)
		idx++
	}
	if upd.MaxFileSizeMB != nil {
		sets = append(sets, fmt.Sprintf("max_file_size_mb = $%d", idx))
		args = append(args, *upd.MaxFileSizeMB)
		idx++
	}
	if upd.AllowedFileTypes != nil {
		types, err := json.Marshal(upd.AllowedFileTypes)
		if err != nil {
			return settings.Settings{}, err
		}
		sets = append(sets, fmt.Sprintf("allowed_file_types = $%d", idx))
		args = append(args, types)
		idx++
	}
	if upd.EnableDocumentSharing != nil {
		sets = append(sets, fmt.Sprintf("enable_document_sharing = $%d", idx))
		args = append(args, *upd.EnableDocumentSharing)
		idx++
	}
	if upd.RequireDocumentApproval != nil {
		sets = append(sets, fmt.Sprintf("require_document_approval = $%d", idx))
		args = append(args, *upd.RequireDocumentApproval)
		idx++
	}
	if upd.AutoBackupEnabled != nil {
		sets = append(sets, fmt.Sprintf("auto_backup_enabled = $%d", idx))
		args = append(args, *upd.AutoBackupEnabled)
		idx++
	}
	if upd.BackupFrequency != nil {
		sets = append(sets, fmt.Sprintf("backup_frequency = $%d", idx))
		args = append(args, *upd.BackupFrequency)
		idx++
	}
	if upd.BackupRetentionDays != nil {
		sets = append(sets, fmt.Sprintf("backup_retention_days = $%d", idx))
		args = append(args, *upd.BackupRetentionDays)
		idx++
	}
	if upd.PasswordExpiryDays != nil {
		sets = append(sets, fmt.Sprintf("password_expiry_days = $%d", idx))
		args = append(args, *upd.PasswordExpiryDays)
		idx++
	}
	if upd.MaxLoginAttempts != nil {
		sets = append(sets, fmt.Sprintf("max_login_attempts = $%d", idx))
		args = append(args, *upd.MaxLoginAttempts)
		idx++
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return settings.Settings{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update system_settings set %s where id = 1`, strings.Join(sets, ", "))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return settings.Settings{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return settings.Settings{}, err
		}
		if aff == 0 {
			return settings.Settings{}, settings.ErrNotFound
		}
	}

	row := tx.QueryRowContext(ctx, `
		select `+settingsColumns+`
		from system_settings
		where id = 1
	`)
	stored, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, settings.ErrNotFound
	}
	if err != nil {
		return settings.Settings{}, err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return settings.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return settings.Settings{}, err
	}
	return stored, nil
}

// CreateBackup records a completed backup together with its audit entry.
func (s *Store) CreateBackup(ctx context.Context, backup settings.Backup, entry audit.Entry) (settings.Backup, error) {
	if s.db == nil {
		return settings.Backup{}, errors.New("database connection unavailable")
	}
	if backup.ID == "" {
		backup.ID = ids.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return settings.Backup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into system_backups (id, path, size_bytes, created_by, notes)
		values ($1, $2, $3, $4, $5)
		returning id, path, size_bytes, created_by, created_at, notes
	`, backup.ID, backup.Path, backup.SizeBytes, backup.CreatedBy, nullIfEmpty(backup.Notes))
	stored, err := scanBackup(row)
	if err != nil {
		return settings.Backup{}, err
	}
	if err := appendAudit(ctx, tx, entry); err != nil {
		return settings.Backup{}, err
	}
	if err := tx.Commit(); err != nil {
		return settings.Backup{}, err
	}
	return stored, nil
}

// ListBackups returns recorded backups, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]settings.Backup, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, path, size_bytes, created_by, created_at, notes
		from system_backups
		order by created_at desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backups []settings.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func scanSettings(row rowScanner) (settings.Settings, error) {
	var (
		out   settings.Settings
		types []byte
	)
	if err := row.Scan(
		&out.SiteName, &out.MaxFileSizeMB, &types,
		&out.EnableDocumentSharing, &out.RequireDocumentApproval, &out.AutoBackupEnabled,
		&out.BackupFrequency, &out.BackupRetentionDays, &out.PasswordExpiryDays,
		&out.MaxLoginAttempts, &out.UpdatedAt,
	); err != nil {
		return settings.Settings{}, err
	}
	if len(types) > 0 {
		if err := json.Unmarshal(types, &out.AllowedFileTypes); err != nil {
			return settings.Settings{}, fmt.Errorf("decode allowed_file_types: %w", err)
		}
	}
	return out, nil
}

func scanBackup(row rowScanner) (settings.Backup, error) {
	var (
		b     settings.Backup
		notes sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Path, &b.SizeBytes, &b.CreatedBy, &b.CreatedAt, &notes); err != nil {
		return settings.Backup{}, err
	}
	b.Notes = notes.String
	return b, nil
}
