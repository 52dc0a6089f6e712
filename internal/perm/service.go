package perm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docportal.org/internal/audit"
)

// GrantRequest describes one grant action.
type GrantRequest struct {
	EntityType EntityType
	EntityID   string
	Permission string
	GrantedBy  string
	ExpiresAt  *time.Time
	Notes      string
}

// Service coordinates grant mutations: validation, the idempotent upsert, and
// revocation. Every mutation carries its audit entry into the store so the
// trail is written in the same transaction.
type Service struct {
	grants  GrantStore
	catalog *Catalog
	now     func() time.Time
}

// NewService constructs a grant service.
func NewService(grants GrantStore, catalog *Catalog) (*Service, error) {
	if grants == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("permission catalog is required")
	}
	return &Service{grants: grants, catalog: catalog, now: time.Now}, nil
}

// Grant creates or reactivates the grant for (entity, permission). The second
// grant of the same triple updates the existing row; it never duplicates.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (Grant, error) {
	if !req.EntityType.Valid() {
		return Grant{}, fmt.Errorf("%w: unsupported entity type %q", ErrInvalidInput, req.EntityType)
	}
	entityID, err := validateEntityID(req.EntityID)
	if err != nil {
		return Grant{}, err
	}
	key, err := s.catalog.Validate(req.Permission)
	if err != nil {
		return Grant{}, err
	}
	grantedBy := strings.TrimSpace(req.GrantedBy)
	if grantedBy == "" {
		return Grant{}, fmt.Errorf("%w: granted_by is required", ErrInvalidInput)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return Grant{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	grant := Grant{
		EntityType: req.EntityType,
		EntityID:   entityID,
		Permission: key,
		GrantedBy:  grantedBy,
		GrantedAt:  s.now().UTC(),
		ExpiresAt:  req.ExpiresAt,
		IsActive:   true,
		Notes:      strings.TrimSpace(req.Notes),
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionGrant,
		Permission: key.String(),
		EntityType: string(req.EntityType),
		EntityID:   entityID,
		Actor:      grantedBy,
		Notes:      grant.Notes,
	})
	return s.grants.UpsertGrant(ctx, grant, entry)
}

// Revoke hard-deletes a grant. The prior state is captured in the audit entry
// before the row goes away; store implementations write both atomically.
func (s *Service) Revoke(ctx context.Context, grantID, actor string) error {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return fmt.Errorf("%w: grant id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	grant, err := s.grants.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionRevoke,
		Permission: grant.Permission.String(),
		EntityType: string(grant.EntityType),
		EntityID:   grant.EntityID,
		Actor:      actor,
		Notes:      grant.Notes,
		Metadata: map[string]string{
			"granted_by": grant.GrantedBy,
			"granted_at": grant.GrantedAt.UTC().Format(time.RFC3339),
		},
	})
	return s.grants.DeleteGrant(ctx, grantID, entry)
}

// ListForEntity returns every grant held by the entity, expired ones included;
// callers filter by Effective when they need the live view.
func (s *Service) ListForEntity(ctx context.Context, entityType EntityType, entityID string) ([]Grant, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: unsupported entity type %q", ErrInvalidInput, entityType)
	}
	entityID, err := validateEntityID(entityID)
	if err != nil {
		return nil, err
	}
	return s.grants.ListEntityGrants(ctx, entityType, entityID)
}

// Get returns a single grant by id.
func (s *Service) Get(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, fmt.Errorf("%w: grant id is required", ErrInvalidInput)
	}
	return s.grants.GetGrant(ctx, grantID)
}

func validateEntityID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: entity id is required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("%w: entity id must be a UUID", ErrInvalidInput)
	}
	return raw, nil
}
