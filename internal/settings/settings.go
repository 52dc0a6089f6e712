package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal.org/internal/audit"
)

var (
	ErrInvalidInput = errors.New("settings: invalid input")
	ErrNotFound     = errors.New("settings: not found")
)

// Settings is the portal-wide configuration singleton.
type Settings struct {
	SiteName                string
	MaxFileSizeMB           int
	AllowedFileTypes        []string
	EnableDocumentSharing   bool
	RequireDocumentApproval bool
	AutoBackupEnabled       bool
	BackupFrequency         string
	BackupRetentionDays     int
	PasswordExpiryDays      int
	MaxLoginAttempts        int
	UpdatedAt               time.Time
}

// Update carries optional settings changes.
type Update struct {
	SiteName                *string
	MaxFileSizeMB           *int
	AllowedFileTypes        []string
	EnableDocumentSharing   *bool
	RequireDocumentApproval *bool
	AutoBackupEnabled       *bool
	BackupFrequency         *string
	BackupRetentionDays     *int
	PasswordExpiryDays      *int
	MaxLoginAttempts        *int
}

// Backup is one recorded snapshot of the portal's data.
type Backup struct {
	ID        string
	Path      string
	SizeBytes int64
	CreatedBy string
	CreatedAt time.Time
	Notes     string
}

// Store persists the settings singleton and backup records. Mutations take
// their audit entry and write it in the same transaction.
type Store interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, upd Update, entry audit.Entry) (Settings, error)
	CreateBackup(ctx context.Context, backup Backup, entry audit.Entry) (Backup, error)
	ListBackups(ctx context.Context) ([]Backup, error)
}

// Service validates and audits settings mutations.
type Service struct {
	store Store
}

// NewService constructs a settings service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	return &Service{store: store}, nil
}

// Get returns the current settings.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

// Update applies the changes and records them in the audit trail.
func (s *Service) Update(ctx context.Context, upd Update, actor string) (Settings, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Settings{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if upd.SiteName != nil {
		name := strings.TrimSpace(*upd.SiteName)
		if name == "" {
			return Settings{}, fmt.Errorf("%w: site name is required", ErrInvalidInput)
		}
		upd.SiteName = &name
	}
	if upd.MaxFileSizeMB != nil && *upd.MaxFileSizeMB <= 0 {
		return Settings{}, fmt.Errorf("%w: max file size must be positive", ErrInvalidInput)
	}
	if upd.BackupFrequency != nil {
		switch *upd.BackupFrequency {
		case "daily", "weekly", "monthly":
		default:
			return Settings{}, fmt.Errorf("%w: unsupported backup frequency %q", ErrInvalidInput, *upd.BackupFrequency)
		}
	}
	if upd.BackupRetentionDays != nil && *upd.BackupRetentionDays < 1 {
		return Settings{}, fmt.Errorf("%w: backup retention must be at least one day", ErrInvalidInput)
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionSettingsUpdate,
		Actor:  actor,
	})
	return s.store.UpdateSettings(ctx, upd, entry)
}

// RecordBackup registers a completed backup and audits it.
func (s *Service) RecordBackup(ctx context.Context, backup Backup, actor string) (Backup, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Backup{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if strings.TrimSpace(backup.Path) == "" {
		return Backup{}, fmt.Errorf("%w: backup path is required", ErrInvalidInput)
	}
	backup.CreatedBy = actor
	entry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionBackup,
		Actor:  actor,
		Notes:  backup.Path,
	})
	return s.store.CreateBackup(ctx, backup, entry)
}

// ListBackups returns recorded backups, newest first.
func (s *Service) ListBackups(ctx context.Context) ([]Backup, error) {
	return s.store.ListBackups(ctx)
}
