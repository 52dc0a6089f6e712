package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/obs"
	"docportal.org/internal/perm"
	"docportal.org/internal/settings"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// handleDomainError maps service sentinels onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, perm.ErrInvalidInput),
		errors.Is(err, docs.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, perm.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, perm.ErrPermissionDenied), errors.Is(err, docs.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, perm.ErrNotFound),
		errors.Is(err, docs.ErrNotFound),
		errors.Is(err, settings.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, perm.ErrConflict), errors.Is(err, docs.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// principalOr401 pulls the authenticated principal from the context.
func (a *API) principalOr401(w http.ResponseWriter, r *http.Request) (perm.Principal, bool) {
	principal, ok := perm.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return perm.Principal{}, false
	}
	return principal, true
}

// ensurePermission gates a handler on one resolved permission key. Every
// refusal is counted and leaves an audit log line.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, key perm.Key) bool {
	principal, ok := a.principalOr401(w, r)
	if !ok {
		return false
	}
	allowed, err := a.resolver.HasPermission(r.Context(), principal, key)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "permission check failed")
		return false
	}
	obs.ObservePermissionCheck(allowed)
	if !allowed {
		_ = audit.LogEvent(r.Context(), "permission.denied", map[string]any{
			"user_id":    principal.ID,
			"permission": key.String(),
			"path":       r.URL.Path,
		})
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}
