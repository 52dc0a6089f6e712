package perm

import "time"

// Roles carried by portal accounts. Admin bypasses the grant store entirely;
// department heads get object-level access to their department's documents.
const (
	RoleAdmin          = "admin"
	RoleDepartmentHead = "department_head"
	RoleManager        = "manager"
	RoleEmployee       = "employee"
)

// EntityType scopes a grant to a user, a department, or a document category.
type EntityType string

const (
	EntityUser       EntityType = "user"
	EntityDepartment EntityType = "department"
	EntityCategory   EntityType = "category"
)

// Valid reports whether the entity type is one of the known scopes.
func (t EntityType) Valid() bool {
	switch t {
	case EntityUser, EntityDepartment, EntityCategory:
		return true
	}
	return false
}

// Assignment links a principal to a department. A nil EndDate means the
// assignment is currently active.
type Assignment struct {
	DepartmentID string
	StartDate    time.Time
	EndDate      *time.Time
	IsPrimary    bool
}

// Active reports whether the assignment has not been ended.
func (a Assignment) Active() bool {
	return a.EndDate == nil
}

// Principal is an authenticated user as seen by the permission system.
type Principal struct {
	ID          string
	Role        string
	Active      bool
	Assignments []Assignment
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ActiveDepartments returns the ids of departments the principal currently
// belongs to. Grants never walk the department hierarchy: only the exact
// departments listed here count.
func (p Principal) ActiveDepartments() []string {
	var out []string
	for _, a := range p.Assignments {
		if a.Active() {
			out = append(out, a.DepartmentID)
		}
	}
	return out
}

// Grant is an active association between an entity and a permission key.
// Grants are unique per (entity type, entity id, permission).
type Grant struct {
	ID         string
	EntityType EntityType
	EntityID   string
	Permission Key
	GrantedBy  string
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	IsActive   bool
	Notes      string
}

// Effective reports whether the grant confers its permission at time now.
// A grant whose expiry has passed is inert even while is_active is still set.
func (g Grant) Effective(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Template is a named, reusable bundle of permission keys.
type Template struct {
	ID          string
	Name        string
	Description string
	Permissions []Key
	CreatedBy   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// UsageCount is derived on read: the distinct count of entities currently
	// holding a grant whose notes reference this template. It is not a counter.
	UsageCount int
}

// ApplyResult summarises a bulk template application.
type ApplyResult struct {
	AppliedCount int      `json:"applied_count"`
	SkippedCount int      `json:"skipped_count"`
	UsageCount   int      `json:"usage_count"`
	Errors       []string `json:"errors,omitempty"`
}
