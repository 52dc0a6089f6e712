package perm

import (
	"context"

	"docportal.org/internal/audit"
)

// GrantStore persists permission grants. Mutating operations take the audit
// entry for the action and must write it in the same transaction as the
// mutation: if the audit write fails, the mutation fails.
type GrantStore interface {
	// UpsertGrant creates the grant or reactivates/updates the existing row
	// for (entity_type, entity_id, permission) as a single atomic statement
	// guarded by the uniqueness constraint.
	UpsertGrant(ctx context.Context, grant Grant, entry audit.Entry) (Grant, error)

	// DeleteGrant hard-deletes a grant after appending the audit entry that
	// captures its prior state. Both happen in one transaction.
	DeleteGrant(ctx context.Context, grantID string, entry audit.Entry) error

	GetGrant(ctx context.Context, grantID string) (Grant, error)
	ListEntityGrants(ctx context.Context, entityType EntityType, entityID string) ([]Grant, error)

	// GrantsForPrincipal returns every active grant targeting the user
	// directly or any of the given departments. Expiry is evaluated by the
	// caller so the cut-off instant is a single consistent "now".
	GrantsForPrincipal(ctx context.Context, userID string, departmentIDs []string) ([]Grant, error)
}

// TemplateUpdate carries optional template field changes.
type TemplateUpdate struct {
	Name        *string
	Description *string
	Permissions []Key
	IsActive    *bool
}

// TemplateStore persists permission templates. The same audit-in-transaction
// rule as GrantStore applies to every mutation.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tpl Template, entry audit.Entry) (Template, error)
	GetTemplate(ctx context.Context, templateID string) (Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	UpdateTemplate(ctx context.Context, templateID string, upd TemplateUpdate, entry audit.Entry) (Template, error)
	DeleteTemplate(ctx context.Context, templateID string, entry audit.Entry) error

	// TemplateUsage recomputes the distinct count of entities currently
	// holding a grant whose notes reference the template.
	TemplateUsage(ctx context.Context, templateID string) (int, error)
}

// PrincipalStore loads principals for the resolver and the HTTP authn layer.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, userID string) (Principal, error)
}
