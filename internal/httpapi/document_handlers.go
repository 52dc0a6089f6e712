package httpapi

import (
	"net/http"
	"strings"
	"time"

	"docportal.org/internal/docs"
	"docportal.org/internal/perm"
)

type createDocPermissionRequest struct {
	UserID       string     `json:"user_id"`
	DepartmentID string     `json:"department_id"`
	Permission   string     `json:"permission"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

type docPermissionResponse struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	UserID       string     `json:"user_id,omitempty"`
	DepartmentID string     `json:"department_id,omitempty"`
	Permission   string     `json:"permission"`
	GrantedBy    string     `json:"granted_by"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toDocPermissionResponse(p docs.DocumentPermission) docPermissionResponse {
	return docPermissionResponse{
		ID:           p.ID,
		DocumentID:   p.DocumentID,
		UserID:       p.UserID,
		DepartmentID: p.DepartmentID,
		Permission:   string(p.Permission),
		GrantedBy:    p.GrantedBy,
		ExpiresAt:    p.ExpiresAt,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
	}
}

// handleDocumentScoped routes /v1/documents/{id}/{access|permissions|shares}.
func (a *API) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	documentID := parts[0]
	switch parts[1] {
	case "access":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.checkDocumentAccess(w, r, documentID)
	case "permissions":
		switch len(parts) {
		case 2:
			a.handleDocumentPermissions(w, r, documentID)
		case 3:
			a.deleteDocumentPermission(w, r, documentID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "shares":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleDocumentShares(w, r, documentID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// checkDocumentAccess answers whether the caller may act on the document at
// the requested level. The decision itself is always 200; denial lives in the
// payload so clients can distinguish "no" from transport errors.
func (a *API) checkDocumentAccess(w http.ResponseWriter, r *http.Request, documentID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.principalOr401(w, r)
	if !ok {
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("level"))
	if raw == "" {
		raw = "view"
	}
	level, valid := docs.ParseAccessLevel(raw)
	if !valid {
		writeError(w, r, http.StatusBadRequest, "unknown access level")
		return
	}
	decision, err := a.access.CanAccess(r.Context(), principal, documentID, level)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"level":       level.String(),
		"allowed":     decision.Allowed,
		"rule":        decision.Rule,
	})
}

// requireDocumentEdit gates permission and share management on edit-level
// access to the document itself.
func (a *API) requireDocumentEdit(w http.ResponseWriter, r *http.Request, documentID string) (perm.Principal, bool) {
	principal, ok := a.principalOr401(w, r)
	if !ok {
		return perm.Principal{}, false
	}
	decision, err := a.access.CanAccess(r.Context(), principal, documentID, docs.LevelEdit)
	if err != nil {
		handleDomainError(w, r, err)
		return perm.Principal{}, false
	}
	if !decision.Allowed {
		writeError(w, r, http.StatusForbidden, "edit access to the document is required")
		return perm.Principal{}, false
	}
	return principal, true
}

func (a *API) handleDocumentPermissions(w http.ResponseWriter, r *http.Request, documentID string) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.principalOr401(w, r)
		if !ok {
			return
		}
		decision, err := a.access.CanAccess(r.Context(), principal, documentID, docs.LevelView)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if !decision.Allowed {
			writeError(w, r, http.StatusForbidden, "access to the document is required")
			return
		}
		perms, err := a.docPerms.List(r.Context(), documentID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		items := make([]docPermissionResponse, 0, len(perms))
		for _, p := range perms {
			items = append(items, toDocPermissionResponse(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		principal, ok := a.requireDocumentEdit(w, r, documentID)
		if !ok {
			return
		}
		var req createDocPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.docPerms.Grant(r.Context(), docs.DocPermissionRequest{
			DocumentID:   documentID,
			UserID:       req.UserID,
			DepartmentID: req.DepartmentID,
			Permission:   docs.DocPermission(strings.TrimSpace(req.Permission)),
			GrantedBy:    principal.ID,
			ExpiresAt:    req.ExpiresAt,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDocPermissionResponse(p))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) deleteDocumentPermission(w http.ResponseWriter, r *http.Request, documentID, permissionID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	principal, ok := a.requireDocumentEdit(w, r, documentID)
	if !ok {
		return
	}
	if err := a.docPerms.Revoke(r.Context(), permissionID, principal.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
