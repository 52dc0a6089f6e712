package docs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docportal.org/internal/audit"
)

func fixtureShareService(t *testing.T, shareStore *stubShareStore, docStore *stubDocumentStore) *ShareService {
	t.Helper()
	if docStore.docs == nil {
		docStore.docs = map[string]Document{
			docID: {ID: docID, Title: "Design notes", OwnedBy: ownerID},
		}
	}
	svc, err := NewShareService(shareStore, docStore)
	if err != nil {
		t.Fatalf("NewShareService: %v", err)
	}
	return svc
}

func TestShareCreateValidatesInput(t *testing.T) {
	svc := fixtureShareService(t, &stubShareStore{}, &stubDocumentStore{})
	cases := []struct {
		name string
		req  ShareRequest
	}{
		{"missing document", ShareRequest{Type: ShareUser, Level: LevelView, UserID: readerID, SharedBy: ownerID}},
		{"missing shared_by", ShareRequest{DocumentID: docID, Type: ShareUser, Level: LevelView, UserID: readerID}},
		{"level out of range", ShareRequest{DocumentID: docID, Type: ShareUser, Level: AccessLevel(99), UserID: readerID, SharedBy: ownerID}},
		{"user share without target", ShareRequest{DocumentID: docID, Type: ShareUser, Level: LevelView, SharedBy: ownerID}},
		{"department share without target", ShareRequest{DocumentID: docID, Type: ShareDepartment, Level: LevelView, SharedBy: ownerID}},
		{"unknown type", ShareRequest{DocumentID: docID, Type: ShareType("carrier_pigeon"), Level: LevelView, SharedBy: ownerID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestShareCreateRejectsPastExpiry(t *testing.T) {
	svc := fixtureShareService(t, &stubShareStore{}, &stubDocumentStore{})
	past := time.Now().Add(-time.Minute)
	_, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: ShareUser, Level: LevelView,
		UserID: readerID, SharedBy: ownerID, ExpiresAt: &past,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestShareCreateUserShare(t *testing.T) {
	shareStore := &stubShareStore{}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	share, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: ShareUser, Level: LevelDownload,
		UserID: "  " + readerID + "  ", SharedBy: ownerID, AllowDownload: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if share.UserID != readerID {
		t.Fatalf("UserID = %q, want trimmed %q", share.UserID, readerID)
	}
	if !share.IsActive || share.PublicToken != "" {
		t.Fatalf("unexpected share state: %+v", share)
	}
	if len(shareStore.entries) != 1 || shareStore.entries[0].Action != audit.ActionShareCreate {
		t.Fatalf("audit entries = %+v", shareStore.entries)
	}
	if got := shareStore.entries[0].Metadata["access_level"]; got != "download" {
		t.Fatalf("audit access_level = %q", got)
	}
}

func TestShareCreatePublicLinkGeneratesToken(t *testing.T) {
	shareStore := &stubShareStore{}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	share, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: SharePublicLink, Level: LevelView, SharedBy: ownerID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if share.PublicToken == "" {
		t.Fatal("public link share has no token")
	}
	// 32 bytes of raw URL-safe base64 is 43 characters
	if len(share.PublicToken) != 43 {
		t.Fatalf("token length = %d, want 43", len(share.PublicToken))
	}
	if strings.ContainsAny(share.PublicToken, "+/=") {
		t.Fatalf("token %q is not URL safe", share.PublicToken)
	}
}

func TestShareCreatePublicLinkRetriesOnTokenCollision(t *testing.T) {
	shareStore := &stubShareStore{createErrs: []error{ErrConflict, ErrConflict}}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	share, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: SharePublicLink, Level: LevelView, SharedBy: ownerID,
	})
	if err != nil {
		t.Fatalf("Create after collisions: %v", err)
	}
	if share.PublicToken == "" {
		t.Fatal("retried share has no token")
	}
	if len(shareStore.created) != 1 {
		t.Fatalf("created %d shares, want 1", len(shareStore.created))
	}
}

func TestShareCreatePublicLinkGivesUpAfterRetries(t *testing.T) {
	shareStore := &stubShareStore{createErrs: []error{ErrConflict, ErrConflict, ErrConflict}}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	_, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: SharePublicLink, Level: LevelView, SharedBy: ownerID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want wrapped ErrConflict", err)
	}
}

func TestShareCreatePublicLinkHashesPassword(t *testing.T) {
	shareStore := &stubShareStore{}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	share, err := svc.Create(context.Background(), ShareRequest{
		DocumentID: docID, Type: SharePublicLink, Level: LevelView,
		SharedBy: ownerID, Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if share.PasswordHash == "" || share.PasswordHash == "hunter2" {
		t.Fatalf("password was not hashed: %q", share.PasswordHash)
	}
}

func TestShareRevokeAuditsAndDeactivates(t *testing.T) {
	shareStore := &stubShareStore{
		byID: map[string]Share{
			"share-9": {ID: "share-9", DocumentID: docID, Type: ShareUser, UserID: readerID, IsActive: true},
		},
	}
	svc := fixtureShareService(t, shareStore, &stubDocumentStore{})

	if err := svc.Revoke(context.Background(), "share-9", ownerID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if shareStore.byID["share-9"].IsActive {
		t.Fatal("share still active after revoke")
	}
	if len(shareStore.entries) != 1 || shareStore.entries[0].Action != audit.ActionShareRevoke {
		t.Fatalf("audit entries = %+v", shareStore.entries)
	}
	if shareStore.entries[0].Metadata["share_id"] != "share-9" {
		t.Fatalf("audit metadata = %+v", shareStore.entries[0].Metadata)
	}
}

func TestShareRevokeMissingShare(t *testing.T) {
	svc := fixtureShareService(t, &stubShareStore{}, &stubDocumentStore{})
	if err := svc.Revoke(context.Background(), "missing", ownerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func publicLinkFixture(t *testing.T, mutate func(*Share)) (*ShareService, *stubShareStore) {
	t.Helper()
	share := Share{
		ID: "share-pub", DocumentID: docID, Type: SharePublicLink,
		Level: LevelView, PublicToken: "tok-1", IsActive: true,
	}
	if mutate != nil {
		mutate(&share)
	}
	shareStore := &stubShareStore{byToken: map[string]Share{share.PublicToken: share}}
	return fixtureShareService(t, shareStore, &stubDocumentStore{}), shareStore
}

func TestResolvePublicLinkUnknownToken(t *testing.T) {
	svc, _ := publicLinkFixture(t, nil)
	if _, _, err := svc.ResolvePublicLink(context.Background(), "no-such-token", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolvePublicLinkInactiveDeniesBeforePassword(t *testing.T) {
	svc, _ := publicLinkFixture(t, func(s *Share) {
		s.IsActive = false
		s.PasswordHash = "$argon2id$bogus"
	})
	// a revoked link denies without ever touching the password hash, so the
	// bogus hash above must not surface as an error
	_, _, err := svc.ResolvePublicLink(context.Background(), "tok-1", "whatever")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestResolvePublicLinkExpiredDenies(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	svc, _ := publicLinkFixture(t, func(s *Share) { s.ExpiresAt = &past })
	if _, _, err := svc.ResolvePublicLink(context.Background(), "tok-1", ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestResolvePublicLinkWrongPassword(t *testing.T) {
	hash, err := hashLinkPassword("correct horse")
	if err != nil {
		t.Fatalf("hashLinkPassword: %v", err)
	}
	svc, shareStore := publicLinkFixture(t, func(s *Share) { s.PasswordHash = hash })

	if _, _, err := svc.ResolvePublicLink(context.Background(), "tok-1", "battery staple"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
	if len(shareStore.accessed) != 0 {
		t.Fatal("failed resolution must not count as an access")
	}
}

func TestResolvePublicLinkSuccess(t *testing.T) {
	hash, err := hashLinkPassword("correct horse")
	if err != nil {
		t.Fatalf("hashLinkPassword: %v", err)
	}
	svc, shareStore := publicLinkFixture(t, func(s *Share) { s.PasswordHash = hash })

	share, doc, err := svc.ResolvePublicLink(context.Background(), "tok-1", "correct horse")
	if err != nil {
		t.Fatalf("ResolvePublicLink: %v", err)
	}
	if doc.ID != docID {
		t.Fatalf("doc = %+v", doc)
	}
	if share.AccessCount != 1 || share.LastAccessedAt == nil {
		t.Fatalf("access not stamped: %+v", share)
	}
	if len(shareStore.accessed) != 1 || shareStore.accessed[0] != "share-pub" {
		t.Fatalf("recorded accesses = %v", shareStore.accessed)
	}
}
