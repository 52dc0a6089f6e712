package docs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docportal.org/internal/audit"
)

// DocPermissionRequest describes one object-level permission to attach to a
// document. Exactly one of UserID and DepartmentID must be set.
type DocPermissionRequest struct {
	DocumentID   string
	UserID       string
	DepartmentID string
	Permission   DocPermission
	GrantedBy    string
	ExpiresAt    *time.Time
}

// PermissionService manages object-level document permissions.
type PermissionService struct {
	documents DocumentStore
	now       func() time.Time
}

// NewPermissionService constructs a document permission service.
func NewPermissionService(documents DocumentStore) (*PermissionService, error) {
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	return &PermissionService{documents: documents, now: time.Now}, nil
}

// Grant attaches a permission verb to a document for a user or a department.
func (s *PermissionService) Grant(ctx context.Context, req DocPermissionRequest) (DocumentPermission, error) {
	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		return DocumentPermission{}, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if !req.Permission.Valid() {
		return DocumentPermission{}, fmt.Errorf("%w: unknown document permission %q", ErrInvalidInput, req.Permission)
	}
	userID := strings.TrimSpace(req.UserID)
	departmentID := strings.TrimSpace(req.DepartmentID)
	if (userID == "") == (departmentID == "") {
		return DocumentPermission{}, fmt.Errorf("%w: exactly one of user_id and department_id must be set", ErrInvalidInput)
	}
	grantedBy := strings.TrimSpace(req.GrantedBy)
	if grantedBy == "" {
		return DocumentPermission{}, fmt.Errorf("%w: granted_by is required", ErrInvalidInput)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return DocumentPermission{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	if _, err := s.documents.GetDocument(ctx, documentID); err != nil {
		return DocumentPermission{}, err
	}

	p := DocumentPermission{
		DocumentID:   documentID,
		UserID:       userID,
		DepartmentID: departmentID,
		Permission:   req.Permission,
		GrantedBy:    grantedBy,
		ExpiresAt:    req.ExpiresAt,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionGrant,
		Permission: string(req.Permission),
		EntityType: "document",
		EntityID:   documentID,
		Actor:      grantedBy,
		Metadata: map[string]string{
			"scope": "document",
		},
	})
	if userID != "" {
		entry.Metadata["user_id"] = userID
	} else {
		entry.Metadata["department_id"] = departmentID
	}
	return s.documents.CreateDocumentPermission(ctx, p, entry)
}

// Revoke deactivates an object-level permission. The row is kept for the trail.
func (s *PermissionService) Revoke(ctx context.Context, permissionID, actor string) error {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}
	entry := audit.Enrich(ctx, audit.Entry{
		Action:     audit.ActionRevoke,
		EntityType: "document",
		Actor:      actor,
		Metadata: map[string]string{
			"scope":         "document",
			"permission_id": permissionID,
		},
	})
	return s.documents.DeactivateDocumentPermission(ctx, permissionID, entry)
}

// List returns every object-level permission on a document.
func (s *PermissionService) List(ctx context.Context, documentID string) ([]DocumentPermission, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	return s.documents.ListDocumentPermissions(ctx, documentID)
}
