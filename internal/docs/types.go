package docs

import "time"

// AccessLevel is the ordinal capability on a share: each level includes every
// level below it (edit > comment > download > view).
type AccessLevel int

const (
	LevelView AccessLevel = iota + 1
	LevelDownload
	LevelComment
	LevelEdit
)

var levelNames = map[AccessLevel]string{
	LevelView:     "view",
	LevelDownload: "download",
	LevelComment:  "comment",
	LevelEdit:     "edit",
}

func (l AccessLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseAccessLevel maps the wire form of a level onto the ordinal.
func ParseAccessLevel(raw string) (AccessLevel, bool) {
	for level, name := range levelNames {
		if name == raw {
			return level, true
		}
	}
	return 0, false
}

// Covers reports whether this level satisfies a request at the given level.
func (l AccessLevel) Covers(requested AccessLevel) bool {
	return l >= requested
}

// DocPermission is the verb on an object-level document permission.
type DocPermission string

const (
	PermView     DocPermission = "view"
	PermDownload DocPermission = "download"
	PermEdit     DocPermission = "edit"
	PermDelete   DocPermission = "delete"
	PermShare    DocPermission = "share"
)

// Valid reports whether the verb is one of the known document permissions.
func (p DocPermission) Valid() bool {
	switch p {
	case PermView, PermDownload, PermEdit, PermDelete, PermShare:
		return true
	}
	return false
}

// Level maps the verb onto the access-level ordinal so object permissions and
// shares compare under one ordering. Delete and share imply full edit access.
func (p DocPermission) Level() AccessLevel {
	switch p {
	case PermView:
		return LevelView
	case PermDownload:
		return LevelDownload
	case PermEdit, PermDelete, PermShare:
		return LevelEdit
	}
	return 0
}

// Category places a document under a department and controls public read access.
type Category struct {
	ID           string
	Name         string
	DepartmentID string
	IsPublic     bool
}

// Document is the access-control view of a stored document.
type Document struct {
	ID        string
	Title     string
	OwnedBy   string
	Category  Category
	CreatedAt time.Time
}

// DocumentPermission grants a user or a department (exactly one of the two)
// an object-level verb on a single document.
type DocumentPermission struct {
	ID           string
	DocumentID   string
	UserID       string
	DepartmentID string
	Permission   DocPermission
	GrantedBy    string
	ExpiresAt    *time.Time
	IsActive     bool
	CreatedAt    time.Time
}

// Effective reports whether the permission applies at time now.
func (p DocumentPermission) Effective(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return false
	}
	return true
}

// ShareType distinguishes the three share channels.
type ShareType string

const (
	ShareUser       ShareType = "user"
	ShareDepartment ShareType = "department"
	SharePublicLink ShareType = "public_link"
)

// Share grants document access to a user, a department, or any holder of a
// public-link token. The target field must match the share type.
type Share struct {
	ID             string
	DocumentID     string
	Type           ShareType
	Level          AccessLevel
	UserID         string
	DepartmentID   string
	PublicToken    string
	PasswordHash   string
	SharedBy       string
	SharedAt       time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	AccessCount    int64
	LastAccessedAt *time.Time
	LastAccessedBy string
	AllowDownload  bool
	AllowReshare   bool
	NotifyOnAccess bool
}

// Effective reports whether the share is live at time now.
func (s Share) Effective(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}
