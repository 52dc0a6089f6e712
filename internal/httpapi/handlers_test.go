package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/perm"
	"docportal.org/internal/settings"
)

const (
	adminID    = "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5a01"
	employeeID = "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5a02"
	inactiveID = "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5a03"
	testDocID  = "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5b01"
	testDeptID = "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5c01"
)

// memBackend is an in-memory implementation of every store the API wires,
// so handler tests run the full service stack without a database.
type memBackend struct {
	principals map[string]perm.Principal
	grants     map[string]perm.Grant
	templates  map[string]perm.Template
	documents  map[string]docs.Document
	docPerms   map[string][]docs.DocumentPermission
	shares     map[string]docs.Share
	heads      map[string]string
	settings   settings.Settings
	backups    []settings.Backup
	trail      []audit.Entry
	seq        int
}

func newMemBackend() *memBackend {
	return &memBackend{
		principals: map[string]perm.Principal{
			adminID:    {ID: adminID, Role: perm.RoleAdmin, Active: true},
			employeeID: {ID: employeeID, Role: perm.RoleEmployee, Active: true, Assignments: []perm.Assignment{{DepartmentID: testDeptID}}},
			inactiveID: {ID: inactiveID, Role: perm.RoleEmployee, Active: false},
		},
		grants:    map[string]perm.Grant{},
		templates: map[string]perm.Template{},
		documents: map[string]docs.Document{
			testDocID: {ID: testDocID, Title: "Quarterly report", OwnedBy: employeeID, Category: docs.Category{ID: "cat-1", DepartmentID: testDeptID}},
		},
		docPerms: map[string][]docs.DocumentPermission{},
		shares:   map[string]docs.Share{},
		heads:    map[string]string{},
		settings: settings.Settings{SiteName: "Docportal", MaxFileSizeMB: 50, BackupFrequency: "daily"},
	}
}

func (m *memBackend) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// perm.PrincipalStore

func (m *memBackend) GetPrincipal(ctx context.Context, userID string) (perm.Principal, error) {
	p, ok := m.principals[userID]
	if !ok {
		return perm.Principal{}, perm.ErrNotFound
	}
	return p, nil
}

// perm.GrantStore

func (m *memBackend) UpsertGrant(ctx context.Context, grant perm.Grant, entry audit.Entry) (perm.Grant, error) {
	for id, existing := range m.grants {
		if existing.EntityType == grant.EntityType && existing.EntityID == grant.EntityID &&
			existing.Permission == grant.Permission {
			grant.ID = id
			m.grants[id] = grant
			m.trail = append(m.trail, entry)
			return grant, nil
		}
	}
	if grant.ID == "" {
		grant.ID = m.nextID("grant")
	}
	m.grants[grant.ID] = grant
	m.trail = append(m.trail, entry)
	return grant, nil
}

func (m *memBackend) DeleteGrant(ctx context.Context, grantID string, entry audit.Entry) error {
	if _, ok := m.grants[grantID]; !ok {
		return perm.ErrNotFound
	}
	delete(m.grants, grantID)
	m.trail = append(m.trail, entry)
	return nil
}

func (m *memBackend) GetGrant(ctx context.Context, grantID string) (perm.Grant, error) {
	g, ok := m.grants[grantID]
	if !ok {
		return perm.Grant{}, perm.ErrNotFound
	}
	return g, nil
}

func (m *memBackend) ListEntityGrants(ctx context.Context, entityType perm.EntityType, entityID string) ([]perm.Grant, error) {
	var out []perm.Grant
	for _, g := range m.grants {
		if g.EntityType == entityType && g.EntityID == entityID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memBackend) GrantsForPrincipal(ctx context.Context, userID string, departmentIDs []string) ([]perm.Grant, error) {
	depts := map[string]struct{}{}
	for _, id := range departmentIDs {
		depts[id] = struct{}{}
	}
	var out []perm.Grant
	for _, g := range m.grants {
		if !g.IsActive {
			continue
		}
		if g.EntityType == perm.EntityUser && g.EntityID == userID {
			out = append(out, g)
			continue
		}
		if g.EntityType == perm.EntityDepartment {
			if _, ok := depts[g.EntityID]; ok {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

// perm.TemplateStore

func (m *memBackend) CreateTemplate(ctx context.Context, tpl perm.Template, entry audit.Entry) (perm.Template, error) {
	if tpl.ID == "" {
		tpl.ID = m.nextID("tpl")
	}
	m.templates[tpl.ID] = tpl
	m.trail = append(m.trail, entry)
	return tpl, nil
}

func (m *memBackend) GetTemplate(ctx context.Context, templateID string) (perm.Template, error) {
	tpl, ok := m.templates[templateID]
	if !ok {
		return perm.Template{}, perm.ErrNotFound
	}
	return tpl, nil
}

func (m *memBackend) ListTemplates(ctx context.Context) ([]perm.Template, error) {
	var out []perm.Template
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (m *memBackend) UpdateTemplate(ctx context.Context, templateID string, upd perm.TemplateUpdate, entry audit.Entry) (perm.Template, error) {
	tpl, ok := m.templates[templateID]
	if !ok {
		return perm.Template{}, perm.ErrNotFound
	}
	if upd.Name != nil {
		tpl.Name = *upd.Name
	}
	if upd.Description != nil {
		tpl.Description = *upd.Description
	}
	if upd.Permissions != nil {
		tpl.Permissions = upd.Permissions
	}
	if upd.IsActive != nil {
		tpl.IsActive = *upd.IsActive
	}
	m.templates[templateID] = tpl
	m.trail = append(m.trail, entry)
	return tpl, nil
}

func (m *memBackend) DeleteTemplate(ctx context.Context, templateID string, entry audit.Entry) error {
	if _, ok := m.templates[templateID]; !ok {
		return perm.ErrNotFound
	}
	delete(m.templates, templateID)
	m.trail = append(m.trail, entry)
	return nil
}

func (m *memBackend) TemplateUsage(ctx context.Context, templateID string) (int, error) {
	seen := map[string]struct{}{}
	for _, g := range m.grants {
		if g.IsActive && strings.Contains(g.Notes, "template:"+templateID) {
			seen[g.EntityID] = struct{}{}
		}
	}
	return len(seen), nil
}

// audit.Recorder and audit.Reader

func (m *memBackend) Record(ctx context.Context, entry audit.Entry) error {
	m.trail = append(m.trail, entry)
	return nil
}

func (m *memBackend) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > len(m.trail) {
		limit = len(m.trail)
	}
	out := make([]audit.Entry, 0, limit)
	for i := len(m.trail) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trail[i])
	}
	return out, nil
}

// docs.DocumentStore

func (m *memBackend) GetDocument(ctx context.Context, documentID string) (docs.Document, error) {
	doc, ok := m.documents[documentID]
	if !ok {
		return docs.Document{}, docs.ErrNotFound
	}
	return doc, nil
}

func (m *memBackend) ListDocumentPermissions(ctx context.Context, documentID string) ([]docs.DocumentPermission, error) {
	return m.docPerms[documentID], nil
}

func (m *memBackend) CreateDocumentPermission(ctx context.Context, p docs.DocumentPermission, entry audit.Entry) (docs.DocumentPermission, error) {
	if p.ID == "" {
		p.ID = m.nextID("dp")
	}
	m.docPerms[p.DocumentID] = append(m.docPerms[p.DocumentID], p)
	m.trail = append(m.trail, entry)
	return p, nil
}

func (m *memBackend) DeactivateDocumentPermission(ctx context.Context, permissionID string, entry audit.Entry) error {
	for docID, perms := range m.docPerms {
		for i, p := range perms {
			if p.ID == permissionID {
				perms[i].IsActive = false
				m.docPerms[docID] = perms
				m.trail = append(m.trail, entry)
				return nil
			}
		}
	}
	return docs.ErrNotFound
}

// docs.ShareStore

func (m *memBackend) CreateShare(ctx context.Context, share docs.Share, entry audit.Entry) (docs.Share, error) {
	if share.ID == "" {
		share.ID = m.nextID("share")
	}
	m.shares[share.ID] = share
	m.trail = append(m.trail, entry)
	return share, nil
}

func (m *memBackend) GetShare(ctx context.Context, shareID string) (docs.Share, error) {
	s, ok := m.shares[shareID]
	if !ok {
		return docs.Share{}, docs.ErrNotFound
	}
	return s, nil
}

func (m *memBackend) GetShareByToken(ctx context.Context, token string) (docs.Share, error) {
	for _, s := range m.shares {
		if s.PublicToken == token {
			return s, nil
		}
	}
	return docs.Share{}, docs.ErrNotFound
}

func (m *memBackend) ListDocumentShares(ctx context.Context, documentID string) ([]docs.Share, error) {
	var out []docs.Share
	for _, s := range m.shares {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memBackend) DeactivateShare(ctx context.Context, shareID string, entry audit.Entry) error {
	s, ok := m.shares[shareID]
	if !ok {
		return docs.ErrNotFound
	}
	s.IsActive = false
	m.shares[shareID] = s
	m.trail = append(m.trail, entry)
	return nil
}

func (m *memBackend) RecordShareAccess(ctx context.Context, shareID, accessedBy string, at time.Time) error {
	s, ok := m.shares[shareID]
	if !ok {
		return docs.ErrNotFound
	}
	s.AccessCount++
	s.LastAccessedAt = &at
	s.LastAccessedBy = accessedBy
	m.shares[shareID] = s
	return nil
}

// docs.DepartmentProvider

func (m *memBackend) DepartmentHead(ctx context.Context, departmentID string) (string, error) {
	return m.heads[departmentID], nil
}

// settings.Store

func (m *memBackend) GetSettings(ctx context.Context) (settings.Settings, error) {
	return m.settings, nil
}

func (m *memBackend) UpdateSettings(ctx context.Context, upd settings.Update, entry audit.Entry) (settings.Settings, error) {
	if upd.SiteName != nil {
		m.settings.SiteName = *upd.SiteName
	}
	if upd.MaxFileSizeMB != nil {
		m.settings.MaxFileSizeMB = *upd.MaxFileSizeMB
	}
	if upd.BackupFrequency != nil {
		m.settings.BackupFrequency = *upd.BackupFrequency
	}
	m.settings.UpdatedAt = time.Now().UTC()
	m.trail = append(m.trail, entry)
	return m.settings, nil
}

func (m *memBackend) CreateBackup(ctx context.Context, backup settings.Backup, entry audit.Entry) (settings.Backup, error) {
	if backup.ID == "" {
		backup.ID = m.nextID("backup")
	}
	backup.CreatedAt = time.Now().UTC()
	m.backups = append(m.backups, backup)
	m.trail = append(m.trail, entry)
	return backup, nil
}

func (m *memBackend) ListBackups(ctx context.Context) ([]settings.Backup, error) {
	return m.backups, nil
}

func newTestAPI(t *testing.T) (http.Handler, *memBackend, *TokenVerifier) {
	t.Helper()
	backend := newMemBackend()
	catalog := perm.DefaultCatalog()
	resolver := perm.NewResolver(backend, catalog)

	grantSvc, err := perm.NewService(backend, catalog)
	if err != nil {
		t.Fatalf("perm.NewService: %v", err)
	}
	templateSvc, err := perm.NewTemplateService(backend, backend, catalog, backend)
	if err != nil {
		t.Fatalf("perm.NewTemplateService: %v", err)
	}
	controller, err := docs.NewController(backend, backend, backend)
	if err != nil {
		t.Fatalf("docs.NewController: %v", err)
	}
	shareSvc, err := docs.NewShareService(backend, backend)
	if err != nil {
		t.Fatalf("docs.NewShareService: %v", err)
	}
	docPermSvc, err := docs.NewPermissionService(backend)
	if err != nil {
		t.Fatalf("docs.NewPermissionService: %v", err)
	}
	settingsSvc, err := settings.NewService(backend)
	if err != nil {
		t.Fatalf("settings.NewService: %v", err)
	}
	verifier, err := NewTokenVerifier([]byte("test-secret"), "docportal-test")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}

	api := New(Config{
		Version:        "test",
		Resolver:       resolver,
		Grants:         grantSvc,
		Templates:      templateSvc,
		Access:         controller,
		Shares:         shareSvc,
		DocPermissions: docPermSvc,
		Settings:       settingsSvc,
		AuditLog:       backend,
		Principals:     backend,
		Verifier:       verifier,
	})
	return RequestID(api.withAuth(api.mux)), backend, verifier
}

func bearerFor(t *testing.T, verifier *TokenVerifier, subject string) string {
	t.Helper()
	token, err := verifier.Mint(subject, time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, h http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	h, _, _ := newTestAPI(t)
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["service"] != "docportal-api" {
		t.Fatalf("body = %v", body)
	}
}

func TestAuthRejections(t *testing.T) {
	h, _, verifier := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/me/permissions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/me/permissions", "Bearer not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/me/permissions",
		bearerFor(t, verifier, "00000000-0000-0000-0000-000000000000"), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown principal: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/me/permissions", bearerFor(t, verifier, inactiveID), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("inactive principal: status = %d, want 403", rec.Code)
	}
}

func TestGrantLifecycle(t *testing.T) {
	h, backend, verifier := newTestAPI(t)
	admin := bearerFor(t, verifier, adminID)
	employee := bearerFor(t, verifier, employeeID)

	// employees hold no assignment rights
	rec := doRequest(t, h, http.MethodPost, "/v1/grants", employee, map[string]any{
		"entity_type": "user",
		"entity_id":   employeeID,
		"permission":  "documents.create",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee grant: status = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/grants", admin, map[string]any{
		"entity_type": "user",
		"entity_id":   employeeID,
		"permission":  "documents.create",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin grant: status = %d: %s", rec.Code, rec.Body.String())
	}
	var created grantResponse
	decodeBody(t, rec, &created)
	if created.ID == "" || created.GrantedBy != adminID {
		t.Fatalf("created = %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/grants/"+created.ID {
		t.Fatalf("Location = %q", loc)
	}

	// the permission now shows up in the holder's effective set
	rec = doRequest(t, h, http.MethodGet, "/v1/me/permissions", employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me/permissions: status = %d", rec.Code)
	}
	var me struct {
		Permissions []string `json:"permissions"`
	}
	decodeBody(t, rec, &me)
	found := false
	for _, p := range me.Permissions {
		if p == "documents.create" {
			found = true
		}
	}
	if !found {
		t.Fatalf("documents.create missing from %v", me.Permissions)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/grants/"+created.ID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get grant: status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, "/v1/grants/"+created.ID, admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: status = %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := backend.grants[created.ID]; ok {
		t.Fatal("grant row still present after revoke")
	}

	rec = doRequest(t, h, http.MethodDelete, "/v1/grants/"+created.ID, admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double revoke: status = %d, want 404", rec.Code)
	}
}

func TestGrantRejectsUnknownPermission(t *testing.T) {
	h, _, verifier := newTestAPI(t)
	rec := doRequest(t, h, http.MethodPost, "/v1/grants", bearerFor(t, verifier, adminID), map[string]any{
		"entity_type": "user",
		"entity_id":   employeeID,
		"permission":  "documents.levitate",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckDocumentAccess(t *testing.T) {
	h, _, verifier := newTestAPI(t)

	// the seeded document is owned by the employee
	rec := doRequest(t, h, http.MethodGet,
		"/v1/documents/"+testDocID+"/access?level=edit", bearerFor(t, verifier, employeeID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var decision struct {
		Allowed bool   `json:"allowed"`
		Rule    string `json:"rule"`
	}
	decodeBody(t, rec, &decision)
	if !decision.Allowed || decision.Rule != docs.RuleOwner {
		t.Fatalf("decision = %+v", decision)
	}

	// admins pass by role, not ownership
	rec = doRequest(t, h, http.MethodGet,
		"/v1/documents/"+testDocID+"/access", bearerFor(t, verifier, adminID), nil)
	decodeBody(t, rec, &decision)
	if !decision.Allowed || decision.Rule != docs.RuleAdmin {
		t.Fatalf("admin decision = %+v", decision)
	}
}

func TestDocumentShareAndPublicLink(t *testing.T) {
	h, backend, verifier := newTestAPI(t)
	owner := bearerFor(t, verifier, employeeID)

	rec := doRequest(t, h, http.MethodPost, "/v1/documents/"+testDocID+"/shares", owner, map[string]any{
		"type":           "public_link",
		"level":          "view",
		"allow_download": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create share: status = %d: %s", rec.Code, rec.Body.String())
	}
	var share shareResponse
	decodeBody(t, rec, &share)
	if share.PublicToken == "" {
		t.Fatal("share response carries no token")
	}

	// the public endpoint needs no credentials
	rec = doRequest(t, h, http.MethodGet, "/public/shares/"+share.PublicToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public resolve: status = %d: %s", rec.Code, rec.Body.String())
	}
	var resolved struct {
		Document struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"document"`
		Level         string `json:"level"`
		AllowDownload bool   `json:"allow_download"`
	}
	decodeBody(t, rec, &resolved)
	if resolved.Document.ID != testDocID || resolved.Level != "view" || !resolved.AllowDownload {
		t.Fatalf("resolved = %+v", resolved)
	}
	if backend.shares[share.ID].AccessCount != 1 {
		t.Fatalf("access count = %d, want 1", backend.shares[share.ID].AccessCount)
	}

	// revoking disables the link
	rec = doRequest(t, h, http.MethodDelete, "/v1/shares/"+share.ID, owner, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke share: status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodGet, "/public/shares/"+share.PublicToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("revoked link: status = %d, want 403", rec.Code)
	}
}

func TestShareManagementNeedsEditAccess(t *testing.T) {
	h, backend, verifier := newTestAPI(t)

	// stranger with no relationship to the document
	strangerID := "7c1f4a2e-9b3d-4e5f-8a6b-1c2d3e4f5a09"
	backend.principals[strangerID] = perm.Principal{ID: strangerID, Role: perm.RoleEmployee, Active: true}

	rec := doRequest(t, h, http.MethodPost, "/v1/documents/"+testDocID+"/shares",
		bearerFor(t, verifier, strangerID), map[string]any{"type": "user", "level": "view", "user_id": strangerID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestTemplateCreateAndApply(t *testing.T) {
	h, backend, verifier := newTestAPI(t)
	admin := bearerFor(t, verifier, adminID)

	rec := doRequest(t, h, http.MethodPost, "/v1/templates", admin, map[string]any{
		"name":        "Manager baseline",
		"permissions": []string{"documents.view_all", "documents.create"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: status = %d: %s", rec.Code, rec.Body.String())
	}
	var tpl templateResponse
	decodeBody(t, rec, &tpl)
	if tpl.ID == "" || len(tpl.Permissions) != 2 {
		t.Fatalf("template = %+v", tpl)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/templates/"+tpl.ID+"/apply", admin, map[string]any{
		"entity_type": "user",
		"entity_ids":  []string{employeeID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply template: status = %d: %s", rec.Code, rec.Body.String())
	}
	grants, _ := backend.ListEntityGrants(context.Background(), perm.EntityUser, employeeID)
	if len(grants) != 2 {
		t.Fatalf("grants after apply = %d, want 2", len(grants))
	}
}

func TestSettingsGatedOnManagePermission(t *testing.T) {
	h, _, verifier := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/settings", bearerFor(t, verifier, employeeID), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee settings: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/settings", bearerFor(t, verifier, adminID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin settings: status = %d: %s", rec.Code, rec.Body.String())
	}
	var current settingsResponse
	decodeBody(t, rec, &current)
	if current.SiteName != "Docportal" {
		t.Fatalf("settings = %+v", current)
	}

	rec = doRequest(t, h, http.MethodPatch, "/v1/settings", bearerFor(t, verifier, adminID), map[string]any{
		"site_name": "Docportal East",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch settings: status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &current)
	if current.SiteName != "Docportal East" {
		t.Fatalf("settings after patch = %+v", current)
	}
}

func TestSettingsRejectsBadBackupFrequency(t *testing.T) {
	h, _, verifier := newTestAPI(t)
	rec := doRequest(t, h, http.MethodPatch, "/v1/settings", bearerFor(t, verifier, adminID), map[string]any{
		"backup_frequency": "hourly",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestBackupRecordAndList(t *testing.T) {
	h, _, verifier := newTestAPI(t)
	admin := bearerFor(t, verifier, adminID)

	rec := doRequest(t, h, http.MethodPost, "/v1/settings/backups", admin, map[string]any{
		"path":       "/backups/2026-08-31.tar.gz",
		"size_bytes": 1048576,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record backup: status = %d: %s", rec.Code, rec.Body.String())
	}
	var backup backupResponse
	decodeBody(t, rec, &backup)
	if backup.CreatedBy != adminID {
		t.Fatalf("backup = %+v", backup)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/settings/backups", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list backups: status = %d", rec.Code)
	}
}

func TestAuditQueryGatedAndOrdered(t *testing.T) {
	h, _, verifier := newTestAPI(t)
	admin := bearerFor(t, verifier, adminID)

	// generate a couple of trail entries
	doRequest(t, h, http.MethodPost, "/v1/grants", admin, map[string]any{
		"entity_type": "user", "entity_id": employeeID, "permission": "documents.view_all",
	})

	rec := doRequest(t, h, http.MethodGet, "/v1/audit?limit=10", bearerFor(t, verifier, employeeID), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee audit read: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/audit?limit=10", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin audit read: status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []auditEntryResponse `json:"items"`
	}
	decodeBody(t, rec, &body)
	if len(body.Items) == 0 {
		t.Fatal("audit trail is empty after a grant")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h, _, verifier := newTestAPI(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/nope", bearerFor(t, verifier, adminID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
