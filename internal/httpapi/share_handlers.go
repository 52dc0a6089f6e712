package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docportal.org/internal/docs"
)

type createShareRequest struct {
	Type           string     `json:"type"`
	Level          string     `json:"level"`
	UserID         string     `json:"user_id"`
	DepartmentID   string     `json:"department_id"`
	Password       string     `json:"password"`
	ExpiresAt      *time.Time `json:"expires_at"`
	AllowDownload  bool       `json:"allow_download"`
	AllowReshare   bool       `json:"allow_reshare"`
	NotifyOnAccess bool       `json:"notify_on_access"`
}

type publicShareRequest struct {
	Password string `json:"password"`
}

type shareResponse struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"document_id"`
	Type           string     `json:"type"`
	Level          string     `json:"level"`
	UserID         string     `json:"user_id,omitempty"`
	DepartmentID   string     `json:"department_id,omitempty"`
	PublicToken    string     `json:"public_token,omitempty"`
	HasPassword    bool       `json:"has_password"`
	SharedBy       string     `json:"shared_by"`
	SharedAt       time.Time  `json:"shared_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	AllowDownload  bool       `json:"allow_download"`
	AllowReshare   bool       `json:"allow_reshare"`
	NotifyOnAccess bool       `json:"notify_on_access"`
}

func toShareResponse(s docs.Share) shareResponse {
	return shareResponse{
		ID:             s.ID,
		DocumentID:     s.DocumentID,
		Type:           string(s.Type),
		Level:          s.Level.String(),
		UserID:         s.UserID,
		DepartmentID:   s.DepartmentID,
		PublicToken:    s.PublicToken,
		HasPassword:    s.PasswordHash != "",
		SharedBy:       s.SharedBy,
		SharedAt:       s.SharedAt,
		ExpiresAt:      s.ExpiresAt,
		IsActive:       s.IsActive,
		AccessCount:    s.AccessCount,
		LastAccessedAt: s.LastAccessedAt,
		AllowDownload:  s.AllowDownload,
		AllowReshare:   s.AllowReshare,
		NotifyOnAccess: s.NotifyOnAccess,
	}
}

func (a *API) handleDocumentShares(w http.ResponseWriter, r *http.Request, documentID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requireDocumentEdit(w, r, documentID); !ok {
			return
		}
		shares, err := a.shares.ListForDocument(r.Context(), documentID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		items := make([]shareResponse, 0, len(shares))
		for _, s := range shares {
			items = append(items, toShareResponse(s))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		principal, ok := a.requireDocumentEdit(w, r, documentID)
		if !ok {
			return
		}
		var req createShareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		level, valid := docs.ParseAccessLevel(strings.TrimSpace(req.Level))
		if !valid {
			writeError(w, r, http.StatusBadRequest, "unknown access level")
			return
		}
		share, err := a.shares.Create(r.Context(), docs.ShareRequest{
			DocumentID:     documentID,
			Type:           docs.ShareType(strings.TrimSpace(req.Type)),
			Level:          level,
			UserID:         req.UserID,
			DepartmentID:   req.DepartmentID,
			Password:       req.Password,
			SharedBy:       principal.ID,
			ExpiresAt:      req.ExpiresAt,
			AllowDownload:  req.AllowDownload,
			AllowReshare:   req.AllowReshare,
			NotifyOnAccess: req.NotifyOnAccess,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/shares/%s", share.ID))
		writeJSON(w, http.StatusCreated, toShareResponse(share))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/shares/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	share, err := a.shares.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	principal, ok := a.requireDocumentEdit(w, r, share.DocumentID)
	if !ok {
		return
	}
	if err := a.shares.Revoke(r.Context(), id, principal.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePublicShare resolves a public-link token, unauthenticated. Password
// protected links take the password in the POST body.
func (a *API) handlePublicShare(w http.ResponseWriter, r *http.Request) {
	token := strings.Trim(strings.TrimPrefix(r.URL.Path, "/public/shares/"), "/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	var password string
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req publicShareRequest
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<10))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		password = req.Password
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}

	share, doc, err := a.shares.ResolvePublicLink(r.Context(), token, password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": map[string]any{
			"id":    doc.ID,
			"title": doc.Title,
		},
		"level":          share.Level.String(),
		"allow_download": share.AllowDownload,
		"expires_at":     share.ExpiresAt,
	})
}
