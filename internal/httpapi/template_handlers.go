package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"docportal.org/internal/perm"
)

type createTemplateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateTemplateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
	IsActive    *bool    `json:"is_active"`
}

type applyTemplateRequest struct {
	EntityType string   `json:"entity_type"`
	EntityIDs  []string `json:"entity_ids"`
	Overwrite  bool     `json:"overwrite"`
}

type templateResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedBy   string    `json:"created_by"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	UsageCount  int       `json:"usage_count"`
}

func toTemplateResponse(tpl perm.Template) templateResponse {
	perms := make([]string, 0, len(tpl.Permissions))
	for _, key := range tpl.Permissions {
		perms = append(perms, key.String())
	}
	return templateResponse{
		ID:          tpl.ID,
		Name:        tpl.Name,
		Description: tpl.Description,
		Permissions: perms,
		CreatedBy:   tpl.CreatedBy,
		IsActive:    tpl.IsActive,
		CreatedAt:   tpl.CreatedAt,
		UpdatedAt:   tpl.UpdatedAt,
		UsageCount:  tpl.UsageCount,
	}
}

func (a *API) handleTemplatesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTemplate(w, r)
	case http.MethodGet:
		a.listTemplates(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	principal, _ := perm.PrincipalFromContext(r.Context())
	var req createTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tpl, err := a.templates.Create(r.Context(), req.Name, req.Description, req.Permissions, principal.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/templates/%s", tpl.ID))
	writeJSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	templates, err := a.templates.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, toTemplateResponse(tpl))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleTemplateResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/templates/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if id, ok := strings.CutSuffix(path, "/apply"); ok {
		a.applyTemplate(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getTemplate(w, r, path)
	case http.MethodPatch:
		a.updateTemplate(w, r, path)
	case http.MethodDelete:
		a.deleteTemplate(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) getTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	tpl, err := a.templates.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	principal, _ := perm.PrincipalFromContext(r.Context())
	var req updateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := perm.TemplateUpdate{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	}
	if req.Permissions != nil {
		keys := make([]perm.Key, 0, len(req.Permissions))
		for _, raw := range req.Permissions {
			key, err := perm.ParseKey(raw)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			keys = append(keys, key)
		}
		upd.Permissions = keys
	}
	tpl, err := a.templates.Update(r.Context(), id, upd, principal.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	principal, _ := perm.PrincipalFromContext(r.Context())
	if err := a.templates.Delete(r.Context(), id, principal.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) applyTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, permAssignRoles) {
		return
	}
	principal, _ := perm.PrincipalFromContext(r.Context())
	var req applyTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.templates.Apply(r.Context(), id, perm.EntityType(req.EntityType), req.EntityIDs, req.Overwrite, principal.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
