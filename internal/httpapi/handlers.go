package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/obs"
	"docportal.org/internal/perm"
	"docportal.org/internal/settings"
)

// ReadyProbe checks downstream readiness, currently a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the services an API serves.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string

	Resolver       *perm.Resolver
	Grants         *perm.Service
	Templates      *perm.TemplateService
	Access         *docs.Controller
	Shares         *docs.ShareService
	DocPermissions *docs.PermissionService
	Settings       *settings.Service
	AuditLog       audit.Reader
	Principals     perm.PrincipalStore
	Verifier       *TokenVerifier
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	resolver   *perm.Resolver
	grants     *perm.Service
	templates  *perm.TemplateService
	access     *docs.Controller
	shares     *docs.ShareService
	docPerms   *docs.PermissionService
	settings   *settings.Service
	auditLog   audit.Reader
	principals perm.PrincipalStore
	verifier   *TokenVerifier
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		resolver:   cfg.Resolver,
		grants:     cfg.Grants,
		templates:  cfg.Templates,
		access:     cfg.Access,
		shares:     cfg.Shares,
		docPerms:   cfg.DocPermissions,
		settings:   cfg.Settings,
		auditLog:   cfg.AuditLog,
		principals: cfg.Principals,
		verifier:   cfg.Verifier,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// permission engine
	a.mux.HandleFunc("/v1/permissions", a.handleCatalog)
	a.mux.HandleFunc("/v1/grants", a.handleGrantsCollection)
	a.mux.HandleFunc("/v1/grants/", a.handleGrantResource)
	a.mux.HandleFunc("/v1/entities/", a.handleEntityPermissions)
	a.mux.HandleFunc("/v1/me/permissions", a.handleMyPermissions)

	// templates
	a.mux.HandleFunc("/v1/templates", a.handleTemplatesCollection)
	a.mux.HandleFunc("/v1/templates/", a.handleTemplateResource)

	// documents: access checks, object permissions, shares
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentScoped)
	a.mux.HandleFunc("/v1/shares/", a.handleShareResource)
	a.mux.HandleFunc("/public/shares/", a.handlePublicShare)

	// audit trail and system settings
	a.mux.HandleFunc("/v1/audit", a.handleAuditQuery)
	a.mux.HandleFunc("/v1/settings", a.handleSettings)
	a.mux.HandleFunc("/v1/settings/backups", a.handleBackups)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RequestID(h)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 100, 50)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "docportal-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "docportal-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
