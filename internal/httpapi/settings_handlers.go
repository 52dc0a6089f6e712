package httpapi

import (
	"net/http"
	"time"

	"docportal.org/internal/perm"
	"docportal.org/internal/settings"
)

var (
	permManageSettings = perm.MustKey("system.manage_settings")
	permBackup         = perm.MustKey("system.backup")
)

type updateSettingsRequest struct {
	SiteName                *string  `json:"site_name"`
	MaxFileSizeMB           *int     `json:"max_file_size_mb"`
	AllowedFileTypes        []string `json:"allowed_file_types"`
	EnableDocumentSharing   *bool    `json:"enable_document_sharing"`
	RequireDocumentApproval *bool    `json:"require_document_approval"`
	AutoBackupEnabled       *bool    `json:"auto_backup_enabled"`
	BackupFrequency         *string  `json:"backup_frequency"`
	BackupRetentionDays     *int     `json:"backup_retention_days"`
	PasswordExpiryDays      *int     `json:"password_expiry_days"`
	MaxLoginAttempts        *int     `json:"max_login_attempts"`
}

type settingsResponse struct {
	SiteName                string    `json:"site_name"`
	MaxFileSizeMB           int       `json:"max_file_size_mb"`
	AllowedFileTypes        []string  `json:"allowed_file_types"`
	EnableDocumentSharing   bool      `json:"enable_document_sharing"`
	RequireDocumentApproval bool      `json:"require_document_approval"`
	AutoBackupEnabled       bool      `json:"auto_backup_enabled"`
	BackupFrequency         string    `json:"backup_frequency"`
	BackupRetentionDays     int       `json:"backup_retention_days"`
	PasswordExpiryDays      int       `json:"password_expiry_days"`
	MaxLoginAttempts        int       `json:"max_login_attempts"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type recordBackupRequest struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Notes     string `json:"notes"`
}

type backupResponse struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
}

func toSettingsResponse(s settings.Settings) settingsResponse {
	return settingsResponse{
		SiteName:                s.SiteName,
		MaxFileSizeMB:           s.MaxFileSizeMB,
		AllowedFileTypes:        s.AllowedFileTypes,
		EnableDocumentSharing:   s.EnableDocumentSharing,
		RequireDocumentApproval: s.RequireDocumentApproval,
		AutoBackupEnabled:       s.AutoBackupEnabled,
		BackupFrequency:         s.BackupFrequency,
		BackupRetentionDays:     s.BackupRetentionDays,
		PasswordExpiryDays:      s.PasswordExpiryDays,
		MaxLoginAttempts:        s.MaxLoginAttempts,
		UpdatedAt:               s.UpdatedAt,
	}
}

func toBackupResponse(b settings.Backup) backupResponse {
	return backupResponse{
		ID:        b.ID,
		Path:      b.Path,
		SizeBytes: b.SizeBytes,
		CreatedBy: b.CreatedBy,
		CreatedAt: b.CreatedAt,
		Notes:     b.Notes,
	}
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permManageSettings) {
			return
		}
		current, err := a.settings.Get(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsResponse(current))
	case http.MethodPatch:
		if !a.ensurePermission(w, r, permManageSettings) {
			return
		}
		principal, _ := perm.PrincipalFromContext(r.Context())
		var req updateSettingsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.settings.Update(r.Context(), settings.Update{
			SiteName:                req.SiteName,
			MaxFileSizeMB:           req.MaxFileSizeMB,
			AllowedFileTypes:        req.AllowedFileTypes,
			EnableDocumentSharing:   req.EnableDocumentSharing,
			RequireDocumentApproval: req.RequireDocumentApproval,
			AutoBackupEnabled:       req.AutoBackupEnabled,
			BackupFrequency:         req.BackupFrequency,
			BackupRetentionDays:     req.BackupRetentionDays,
			PasswordExpiryDays:      req.PasswordExpiryDays,
			MaxLoginAttempts:        req.MaxLoginAttempts,
		}, principal.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsResponse(updated))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleBackups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permBackup) {
			return
		}
		backups, err := a.settings.ListBackups(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		items := make([]backupResponse, 0, len(backups))
		for _, b := range backups {
			items = append(items, toBackupResponse(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if !a.ensurePermission(w, r, permBackup) {
			return
		}
		principal, _ := perm.PrincipalFromContext(r.Context())
		var req recordBackupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		backup, err := a.settings.RecordBackup(r.Context(), settings.Backup{
			Path:      req.Path,
			SizeBytes: req.SizeBytes,
			Notes:     req.Notes,
		}, principal.ID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBackupResponse(backup))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
