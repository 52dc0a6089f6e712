package docs

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"docportal.org/internal/audit"
)

// tokenBytes is the entropy of a public-link token before encoding.
const tokenBytes = 32

// tokenRetries bounds collision retries on the unique token constraint.
const tokenRetries = 3

// ShareRequest describes a new share. Exactly the target matching the type
// must be set: UserID for user shares, DepartmentID for department shares,
// neither for public links.
type ShareRequest struct {
	DocumentID     string
	Type           ShareType
	Level          AccessLevel
	UserID         string
	DepartmentID   string
	Password       string
	SharedBy       string
	ExpiresAt      *time.Time
	AllowDownload  bool
	AllowReshare   bool
	NotifyOnAccess bool
}

// ShareService creates and resolves document shares, including the
// public-link token channel.
type ShareService struct {
	shares    ShareStore
	documents DocumentStore
	now       func() time.Time
}

// NewShareService constructs a share service.
func NewShareService(shares ShareStore, documents DocumentStore) (*ShareService, error) {
	if shares == nil || documents == nil {
		return nil, fmt.Errorf("share and document stores are required")
	}
	return &ShareService{shares: shares, documents: documents, now: time.Now}, nil
}

// Create validates and persists a share. Public-link shares get a fresh
// URL-safe token from a cryptographically secure source; creation is retried
// when the token collides with an existing one.
func (s *ShareService) Create(ctx context.Context, req ShareRequest) (Share, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return Share{}, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.SharedBy) == "" {
		return Share{}, fmt.Errorf("%w: shared_by is required", ErrInvalidInput)
	}
	if !req.Level.Covers(LevelView) || req.Level > LevelEdit {
		return Share{}, fmt.Errorf("%w: unsupported access level", ErrInvalidInput)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return Share{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	if _, err := s.documents.GetDocument(ctx, req.DocumentID); err != nil {
		return Share{}, err
	}

	share := Share{
		DocumentID:     req.DocumentID,
		Type:           req.Type,
		Level:          req.Level,
		SharedBy:       req.SharedBy,
		SharedAt:       s.now().UTC(),
		ExpiresAt:      req.ExpiresAt,
		IsActive:       true,
		AllowDownload:  req.AllowDownload,
		AllowReshare:   req.AllowReshare,
		NotifyOnAccess: req.NotifyOnAccess,
	}

	switch req.Type {
	case ShareUser:
		if strings.TrimSpace(req.UserID) == "" {
			return Share{}, fmt.Errorf("%w: user share requires a target user", ErrInvalidInput)
		}
		share.UserID = strings.TrimSpace(req.UserID)
	case ShareDepartment:
		if strings.TrimSpace(req.DepartmentID) == "" {
			return Share{}, fmt.Errorf("%w: department share requires a target department", ErrInvalidInput)
		}
		share.DepartmentID = strings.TrimSpace(req.DepartmentID)
	case SharePublicLink:
		if req.Password != "" {
			hash, err := hashLinkPassword(req.Password)
			if err != nil {
				return Share{}, err
			}
			share.PasswordHash = hash
		}
	default:
		return Share{}, fmt.Errorf("%w: unsupported share type %q", ErrInvalidInput, req.Type)
	}

	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionShareCreate,
		EntityType: string(req.Type),
		EntityID:   req.DocumentID,
		Actor:      req.SharedBy,
		Metadata: map[string]string{
			"access_level": req.Level.String(),
		},
	})

	if req.Type != SharePublicLink {
		return s.shares.CreateShare(ctx, share, entry)
	}

	// Token collisions are vanishingly rare at 32 bytes of entropy but the
	// unique constraint makes retrying cheap.
	var lastErr error
	for attempt := 0; attempt < tokenRetries; attempt++ {
		token, err := newLinkToken()
		if err != nil {
			return Share{}, err
		}
		share.PublicToken = token
		created, err := s.shares.CreateShare(ctx, share, entry)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Share{}, err
		}
		lastErr = err
	}
	return Share{}, fmt.Errorf("allocate public link token: %w", lastErr)
}

// Revoke soft-disables a share; the row stays for the audit trail.
func (s *ShareService) Revoke(ctx context.Context, shareID, actor string) error {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return fmt.Errorf("%w: share id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	share, err := s.shares.GetShare(ctx, shareID)
	if err != nil {
		return err
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionShareRevoke,
		EntityType: string(share.Type),
		EntityID:   share.DocumentID,
		Actor:      actor,
		Metadata: map[string]string{
			"share_id": share.ID,
		},
	})
	return s.shares.DeactivateShare(ctx, shareID, entry)
}

// Get returns a share by id.
func (s *ShareService) Get(ctx context.Context, shareID string) (Share, error) {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return Share{}, fmt.Errorf("%w: share id is required", ErrInvalidInput)
	}
	return s.shares.GetShare(ctx, shareID)
}

// ListForDocument returns every share on a document.
func (s *ShareService) ListForDocument(ctx context.Context, documentID string) ([]Share, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	return s.shares.ListDocumentShares(ctx, documentID)
}

// ResolvePublicLink resolves a token to its share and document. A token
// absent from the store, or present but inactive or expired, denies before
// the password is even considered. Successful resolutions are counted on the
// share; password-gated links count only after the password check passes.
func (s *ShareService) ResolvePublicLink(ctx context.Context, token, password string) (Share, Document, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Share{}, Document{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	share, err := s.shares.GetShareByToken(ctx, token)
	if err != nil {
		return Share{}, Document{}, err
	}
	if share.Type != SharePublicLink || !share.Effective(s.now()) {
		return Share{}, Document{}, fmt.Errorf("%w: link is no longer valid", ErrAccessDenied)
	}
	if share.PasswordHash != "" {
		ok, err := verifyLinkPassword(share.PasswordHash, password)
		if err != nil {
			return Share{}, Document{}, err
		}
		if !ok {
			return Share{}, Document{}, fmt.Errorf("%w: incorrect link password", ErrAccessDenied)
		}
	}

	doc, err := s.documents.GetDocument(ctx, share.DocumentID)
	if err != nil {
		return Share{}, Document{}, err
	}

	accessedAt := s.now().UTC()
	if err := s.shares.RecordShareAccess(ctx, share.ID, "", accessedAt); err != nil {
		return Share{}, Document{}, err
	}
	share.AccessCount++
	share.LastAccessedAt = &accessedAt

	_ = audit.LogEvent(ctx, "share.public_link.access", map[string]any{
		"share_id":    share.ID,
		"document_id": doc.ID,
	})
	return share, doc, nil
}

// RecordAccess stamps an authenticated access on a user or department share.
func (s *ShareService) RecordAccess(ctx context.Context, shareID, accessedBy string) error {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return fmt.Errorf("%w: share id is required", ErrInvalidInput)
	}
	return s.shares.RecordShareAccess(ctx, shareID, accessedBy, s.now().UTC())
}

func newLinkToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
