package docs

import (
	"context"
	"fmt"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/obs"
	"docportal.org/internal/perm"
)

// Rule labels for access decisions, used in metrics and the denial audit line.
const (
	RuleAdmin          = "admin"
	RuleOwner          = "owner"
	RuleDepartmentHead = "department_head"
	RuleUserPermission = "user_permission"
	RuleDeptPermission = "department_permission"
	RuleUserShare      = "user_share"
	RuleDeptShare      = "department_share"
	RulePublicCategory = "public_category"
	RuleDenied         = "denied"
)

// Decision is the outcome of an access check, with the rule that matched.
type Decision struct {
	Allowed bool
	Rule    string
}

// Controller makes per-document access decisions by combining ownership,
// object-level permissions, and shares in a fixed evaluation order.
type Controller struct {
	documents   DocumentStore
	shares      ShareStore
	departments DepartmentProvider
	now         func() time.Time
}

// NewController constructs an access controller.
func NewController(documents DocumentStore, shares ShareStore, departments DepartmentProvider) (*Controller, error) {
	if documents == nil || shares == nil {
		return nil, fmt.Errorf("document and share stores are required")
	}
	if departments == nil {
		return nil, fmt.Errorf("department provider is required")
	}
	return &Controller{
		documents:   documents,
		shares:      shares,
		departments: departments,
		now:         time.Now,
	}, nil
}

// CanAccess reports whether the principal may act on the document at the
// requested level. Rules are evaluated in strict order and the first match
// wins; every deny is logged so refusals never disappear silently.
func (c *Controller) CanAccess(ctx context.Context, principal perm.Principal, documentID string, level AccessLevel) (Decision, error) {
	if documentID == "" {
		return Decision{}, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if !level.Covers(LevelView) || level > LevelEdit {
		return Decision{}, fmt.Errorf("%w: unsupported access level", ErrInvalidInput)
	}

	doc, err := c.documents.GetDocument(ctx, documentID)
	if err != nil {
		return Decision{}, err
	}

	decision, err := c.decide(ctx, principal, doc, level)
	if err != nil {
		return Decision{}, err
	}
	obs.ObserveAccessDecision(decision.Rule, decision.Allowed)
	if !decision.Allowed {
		_ = audit.LogEvent(ctx, "document.access.denied", map[string]any{
			"document_id": doc.ID,
			"user_id":     principal.ID,
			"level":       level.String(),
		})
	}
	return decision, nil
}

func (c *Controller) decide(ctx context.Context, principal perm.Principal, doc Document, level AccessLevel) (Decision, error) {
	if principal.ID == "" || !principal.Active {
		return Decision{Rule: RuleDenied}, nil
	}

	// 1. Admins see everything.
	if principal.IsAdmin() {
		return Decision{Allowed: true, Rule: RuleAdmin}, nil
	}
	// 2. Owners keep full access to their own documents.
	if doc.OwnedBy != "" && doc.OwnedBy == principal.ID {
		return Decision{Allowed: true, Rule: RuleOwner}, nil
	}
	// 3. A department head covers every document filed under their department.
	if principal.Role == perm.RoleDepartmentHead && doc.Category.DepartmentID != "" {
		head, err := c.departments.DepartmentHead(ctx, doc.Category.DepartmentID)
		if err != nil {
			return Decision{}, err
		}
		if head != "" && head == principal.ID {
			return Decision{Allowed: true, Rule: RuleDepartmentHead}, nil
		}
	}

	now := c.now()
	memberOf := make(map[string]struct{})
	for _, id := range principal.ActiveDepartments() {
		memberOf[id] = struct{}{}
	}

	// 4 and 5. Object-level permissions: direct first, then department.
	perms, err := c.documents.ListDocumentPermissions(ctx, doc.ID)
	if err != nil {
		return Decision{}, err
	}
	for _, p := range perms {
		if p.Effective(now) && p.UserID != "" && p.UserID == principal.ID && p.Permission.Level().Covers(level) {
			return Decision{Allowed: true, Rule: RuleUserPermission}, nil
		}
	}
	for _, p := range perms {
		if !p.Effective(now) || p.DepartmentID == "" {
			continue
		}
		if _, member := memberOf[p.DepartmentID]; member && p.Permission.Level().Covers(level) {
			return Decision{Allowed: true, Rule: RuleDeptPermission}, nil
		}
	}

	// 6 and 7. Shares: direct user shares, then department shares. Public-link
	// shares resolve by token through ShareService, never by principal identity.
	shares, err := c.shares.ListDocumentShares(ctx, doc.ID)
	if err != nil {
		return Decision{}, err
	}
	for _, s := range shares {
		if s.Type == ShareUser && s.Effective(now) && s.UserID == principal.ID && shareCovers(s, level) {
			return Decision{Allowed: true, Rule: RuleUserShare}, nil
		}
	}
	for _, s := range shares {
		if s.Type != ShareDepartment || !s.Effective(now) || !shareCovers(s, level) {
			continue
		}
		if _, member := memberOf[s.DepartmentID]; member {
			return Decision{Allowed: true, Rule: RuleDeptShare}, nil
		}
	}

	// 8. Public categories are world-readable, view only.
	if doc.Category.IsPublic && level == LevelView {
		return Decision{Allowed: true, Rule: RulePublicCategory}, nil
	}

	return Decision{Rule: RuleDenied}, nil
}

// shareCovers applies the share's level ordering, with the extra rule that
// downloads are gated on the share's allow_download flag regardless of level.
func shareCovers(s Share, level AccessLevel) bool {
	if !s.Level.Covers(level) {
		return false
	}
	if level == LevelDownload && !s.AllowDownload {
		return false
	}
	return true
}
