package docs

import (
	"context"
	"time"

	"docportal.org/internal/audit"
)

// DocumentStore is the read side the access controller needs: documents with
// their category and the object-level permissions attached to them.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentID string) (Document, error)
	ListDocumentPermissions(ctx context.Context, documentID string) ([]DocumentPermission, error)

	// CreateDocumentPermission writes the permission and its audit entry in
	// one transaction.
	CreateDocumentPermission(ctx context.Context, p DocumentPermission, entry audit.Entry) (DocumentPermission, error)
	DeactivateDocumentPermission(ctx context.Context, permissionID string, entry audit.Entry) error
}

// ShareStore persists document shares. Shares are soft-disabled on revoke,
// never hard-deleted through the standard flow.
type ShareStore interface {
	CreateShare(ctx context.Context, share Share, entry audit.Entry) (Share, error)
	GetShare(ctx context.Context, shareID string) (Share, error)
	GetShareByToken(ctx context.Context, token string) (Share, error)
	ListDocumentShares(ctx context.Context, documentID string) ([]Share, error)
	DeactivateShare(ctx context.Context, shareID string, entry audit.Entry) error

	// RecordShareAccess bumps access_count and stamps last_accessed_at/by.
	RecordShareAccess(ctx context.Context, shareID, accessedBy string, at time.Time) error
}

// DepartmentProvider answers who heads a department. An empty head id means
// the department is headless.
type DepartmentProvider interface {
	DepartmentHead(ctx context.Context, departmentID string) (string, error)
}
