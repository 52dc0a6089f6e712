package perm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docportal.org/internal/audit"
)

// templateNote marks grants created through a template so usage can be
// recomputed from live state later.
func templateNote(templateID string) string {
	return "template:" + templateID
}

// TemplateService manages named permission bundles and applies them in bulk
// through the grant store.
type TemplateService struct {
	templates TemplateStore
	grants    GrantStore
	catalog   *Catalog
	recorder  audit.Recorder
	now       func() time.Time
}

// NewTemplateService constructs a template service.
func NewTemplateService(templates TemplateStore, grants GrantStore, catalog *Catalog, recorder audit.Recorder) (*TemplateService, error) {
	if templates == nil || grants == nil {
		return nil, fmt.Errorf("template and grant stores are required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("permission catalog is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	return &TemplateService{
		templates: templates,
		grants:    grants,
		catalog:   catalog,
		recorder:  recorder,
		now:       time.Now,
	}, nil
}

// Create registers a new template after validating every key against the catalog.
func (s *TemplateService) Create(ctx context.Context, name, description string, permissions []string, createdBy string) (Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Template{}, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return Template{}, fmt.Errorf("%w: created_by is required", ErrInvalidInput)
	}
	keys, err := s.validateKeys(permissions)
	if err != nil {
		return Template{}, err
	}
	tpl := Template{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: keys,
		CreatedBy:   createdBy,
		IsActive:    true,
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionTemplateCreate,
		Actor:  createdBy,
		Notes:  name,
		Metadata: map[string]string{
			"permission_count": fmt.Sprintf("%d", len(keys)),
		},
	})
	return s.templates.CreateTemplate(ctx, tpl, entry)
}

// Get returns a template with its usage count recomputed.
func (s *TemplateService) Get(ctx context.Context, templateID string) (Template, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return Template{}, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	usage, err := s.templates.TemplateUsage(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	tpl.UsageCount = usage
	return tpl, nil
}

// List returns every template.
func (s *TemplateService) List(ctx context.Context) ([]Template, error) {
	return s.templates.ListTemplates(ctx)
}

// Update changes template fields; permission lists are re-validated in full.
func (s *TemplateService) Update(ctx context.Context, templateID string, upd TemplateUpdate, actor string) (Template, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return Template{}, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Template{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Template{}, fmt.Errorf("%w: template name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Permissions != nil {
		seen := make(map[Key]struct{}, len(upd.Permissions))
		deduped := make([]Key, 0, len(upd.Permissions))
		for _, key := range upd.Permissions {
			if !s.catalog.Contains(key) {
				return Template{}, fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, key)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			deduped = append(deduped, key)
		}
		upd.Permissions = deduped
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionTemplateUpdate,
		Actor:  actor,
		Metadata: map[string]string{
			"template_id": templateID,
		},
	})
	return s.templates.UpdateTemplate(ctx, templateID, upd, entry)
}

// Delete removes a template. Templates still referenced by live grants are
// protected: deletion is refused while the recomputed usage count is above zero.
func (s *TemplateService) Delete(ctx context.Context, templateID, actor string) error {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	usage, err := s.templates.TemplateUsage(ctx, templateID)
	if err != nil {
		return err
	}
	if usage > 0 {
		return fmt.Errorf("%w: template %s is in use by %d entities", ErrConflict, tpl.Name, usage)
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionTemplateDelete,
		Actor:  actor,
		Notes:  tpl.Name,
		Metadata: map[string]string{
			"template_id": templateID,
		},
	})
	return s.templates.DeleteTemplate(ctx, templateID, entry)
}

// Apply grants every permission in the template to every target entity.
// Existing active grants are skipped unless overwrite is set, in which case
// the granter and notes are refreshed in place and the grant's expiry is left
// untouched. Applied and skipped counts are per target entity: an entity is
// applied when at least one grant was written for it, skipped when it already
// held the full set. The returned usage count is recomputed from live state,
// not incremented.
func (s *TemplateService) Apply(ctx context.Context, templateID string, entityType EntityType, entityIDs []string, overwrite bool, actor string) (ApplyResult, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return ApplyResult{}, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ApplyResult{}, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	if !entityType.Valid() {
		return ApplyResult{}, fmt.Errorf("%w: unsupported entity type %q", ErrInvalidInput, entityType)
	}
	if len(entityIDs) == 0 {
		return ApplyResult{}, fmt.Errorf("%w: at least one target entity is required", ErrInvalidInput)
	}
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return ApplyResult{}, err
	}
	if !tpl.IsActive {
		return ApplyResult{}, fmt.Errorf("%w: template %s is inactive", ErrInvalidInput, tpl.Name)
	}

	var result ApplyResult
	now := s.now()
	for _, rawID := range entityIDs {
		entityID, err := validateEntityID(rawID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rawID, err))
			continue
		}
		existing, err := s.grants.ListEntityGrants(ctx, entityType, entityID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entityID, err))
			continue
		}
		held := make(map[Key]Grant, len(existing))
		for _, g := range existing {
			if g.Effective(now) {
				held[g.Permission] = g
			}
		}
		var wrote, alreadyHeld int
		for _, key := range tpl.Permissions {
			prior, ok := held[key]
			if ok && !overwrite {
				alreadyHeld++
				continue
			}
			grant := Grant{
				EntityType: entityType,
				EntityID:   entityID,
				Permission: key,
				GrantedBy:  actor,
				GrantedAt:  now.UTC(),
				IsActive:   true,
				Notes:      templateNote(templateID),
			}
			if ok {
				// Overwrite refreshes granter and notes; expiry stays as granted.
				grant.ExpiresAt = prior.ExpiresAt
			}
			entry := audit.Enrich(ctx, audit.Entry{
				Action:     audit.ActionGrant,
				Permission: key.String(),
				EntityType: string(entityType),
				EntityID:   entityID,
				Actor:      actor,
				Notes:      grant.Notes,
			})
			if _, err := s.grants.UpsertGrant(ctx, grant, entry); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", entityID, key, err))
				continue
			}
			wrote++
		}
		switch {
		case wrote > 0:
			result.AppliedCount++
		case alreadyHeld > 0:
			result.SkippedCount++
		}
	}

	applyEntry := audit.Enrich(ctx, audit.Entry{
		Action: audit.ActionTemplateApply,
		Actor:  actor,
		Notes:  tpl.Name,
		Metadata: map[string]string{
			"template_id":   templateID,
			"entity_type":   string(entityType),
			"target_count":  fmt.Sprintf("%d", len(entityIDs)),
			"applied_count": fmt.Sprintf("%d", result.AppliedCount),
			"skipped_count": fmt.Sprintf("%d", result.SkippedCount),
		},
	})
	if err := s.recorder.Record(ctx, applyEntry); err != nil {
		return ApplyResult{}, fmt.Errorf("record template apply: %w", err)
	}

	usage, err := s.templates.TemplateUsage(ctx, templateID)
	if err != nil {
		return ApplyResult{}, err
	}
	result.UsageCount = usage
	return result, nil
}

func (s *TemplateService) validateKeys(raw []string) ([]Key, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}
	seen := make(map[Key]struct{}, len(raw))
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		key, err := s.catalog.Validate(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}
