package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"docportal.org/internal/perm"
)

type createGrantRequest struct {
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Permission string     `json:"permission"`
	ExpiresAt  *time.Time `json:"expires_at"`
	Notes      string     `json:"notes"`
}

type grantResponse struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Permission string     `json:"permission"`
	GrantedBy  string     `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	Notes      string     `json:"notes,omitempty"`
}

type catalogEntryResponse struct {
	Key      string `json:"key"`
	Category string `json:"category"`
	Label    string `json:"label"`
}

func toGrantResponse(g perm.Grant) grantResponse {
	return grantResponse{
		ID:         g.ID,
		EntityType: string(g.EntityType),
		EntityID:   g.EntityID,
		Permission: g.Permission.String(),
		GrantedBy:  g.GrantedBy,
		GrantedAt:  g.GrantedAt,
		ExpiresAt:  g.ExpiresAt,
		IsActive:   g.IsActive,
		Notes:      g.Notes,
	}
}

func toGrantResponses(grants []perm.Grant) []grantResponse {
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	return out
}

var permAssignRoles = perm.MustKey("users.assign_roles")

// handleCatalog lists every permission key the portal knows about.
func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.principalOr401(w, r); !ok {
		return
	}
	catalog := a.resolver.Catalog()
	items := make([]catalogEntryResponse, 0)
	for _, key := range catalog.Keys() {
		entry, _ := catalog.Entry(key)
		items = append(items, catalogEntryResponse{
			Key:      key.String(),
			Category: key.Category,
			Label:    entry.Label,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleGrantsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGrant(w, r)
	case http.MethodGet:
		a.listGrants(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createGrant(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	principal, _ := perm.PrincipalFromContext(r.Context())
	var req createGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.grants.Grant(r.Context(), perm.GrantRequest{
		EntityType: perm.EntityType(strings.TrimSpace(req.EntityType)),
		EntityID:   req.EntityID,
		Permission: req.Permission,
		GrantedBy:  principal.ID,
		ExpiresAt:  req.ExpiresAt,
		Notes:      req.Notes,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/grants/"+grant.ID)
	writeJSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (a *API) listGrants(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	entityType := perm.EntityType(strings.TrimSpace(r.URL.Query().Get("entity_type")))
	entityID := strings.TrimSpace(r.URL.Query().Get("entity_id"))
	if entityType == "" || entityID == "" {
		writeError(w, r, http.StatusBadRequest, "entity_type and entity_id query parameters are required")
		return
	}
	grants, err := a.grants.ListForEntity(r.Context(), entityType, entityID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toGrantResponses(grants)})
}

func (a *API) handleGrantResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/grants/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permAssignRoles) {
			return
		}
		grant, err := a.grants.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toGrantResponse(grant))
	case http.MethodDelete:
		if !a.ensurePermission(w, r, permAssignRoles) {
			return
		}
		principal, _ := perm.PrincipalFromContext(r.Context())
		if err := a.grants.Revoke(r.Context(), id, principal.ID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleEntityPermissions lists the grants attached to one entity:
// /v1/entities/{type}/{id}/permissions
func (a *API) handleEntityPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/entities/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[2] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	grants, err := a.grants.ListForEntity(r.Context(), perm.EntityType(parts[0]), parts[1])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toGrantResponses(grants)})
}

// handleMyPermissions returns the caller's effective permission set.
func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.principalOr401(w, r)
	if !ok {
		return
	}
	set, err := a.resolver.Resolve(r.Context(), principal)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "permission resolution failed")
		return
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key.String())
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     principal.ID,
		"role":        principal.Role,
		"permissions": keys,
	})
}
