package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
)

func shareRows(id, token string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "share_type", "access_level", "user_id", "department_id",
		"public_link_token", "link_password_hash", "shared_by", "shared_at", "expires_at", "is_active",
		"access_count", "last_accessed_at", "last_accessed_by", "allow_download", "allow_reshare", "notify_on_access",
	}).AddRow(id, "doc-1", "public_link", "view", nil, nil,
		token, nil, "user-owner", time.Now(), nil, true,
		int64(0), nil, nil, true, false, false)
}

func shareEntry() audit.Entry {
	return audit.Entry{
		Action:     audit.ActionShareCreate,
		Actor:      "user-owner",
		OccurredAt: time.Now().UTC(),
	}
}

func TestCreateShareCommitsWithAudit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into document_shares").WillReturnRows(shareRows("share-1", "tok-1"))
	mock.ExpectExec("insert into permission_audit_log").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	share := docs.Share{
		DocumentID:  "doc-1",
		Type:        docs.SharePublicLink,
		Level:       docs.LevelView,
		PublicToken: "tok-1",
		SharedBy:    "user-owner",
		SharedAt:    time.Now().UTC(),
		IsActive:    true,
	}
	stored, err := store.CreateShare(context.Background(), share, shareEntry())
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	if stored.ID != "share-1" || stored.Level != docs.LevelView || stored.PublicToken != "tok-1" {
		t.Fatalf("stored = %+v", stored)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateShareMapsTokenCollisionToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into document_shares").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	share := docs.Share{
		DocumentID:  "doc-1",
		Type:        docs.SharePublicLink,
		Level:       docs.LevelView,
		PublicToken: "tok-dup",
		SharedBy:    "user-owner",
		SharedAt:    time.Now().UTC(),
		IsActive:    true,
	}
	if _, err := store.CreateShare(context.Background(), share, shareEntry()); !errors.Is(err, docs.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateShareMapsCheckViolationToInvalidInput(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("insert into document_shares").
		WillReturnError(&pgconn.PgError{Code: pgErrCheckViolation})
	mock.ExpectRollback()

	share := docs.Share{
		DocumentID: "doc-1",
		Type:       docs.ShareUser,
		Level:      docs.LevelView,
		SharedBy:   "user-owner",
		SharedAt:   time.Now().UTC(),
		IsActive:   true,
	}
	if _, err := store.CreateShare(context.Background(), share, shareEntry()); !errors.Is(err, docs.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeactivateShareMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("update document_shares set is_active = false").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.DeactivateShare(context.Background(), "missing", shareEntry()); !errors.Is(err, docs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordShareAccessBumpsCounter(t *testing.T) {
	store, mock := newMockStore(t)

	at := time.Now().UTC()
	mock.ExpectExec("update document_shares").
		WithArgs("share-1", at, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.RecordShareAccess(context.Background(), "share-1", "", at); err != nil {
		t.Fatalf("RecordShareAccess: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetShareByTokenNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select .* from document_shares").
		WithArgs("no-such-token").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetShareByToken(context.Background(), "no-such-token"); !errors.Is(err, docs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTemplateUsageCountsDistinctEntities(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select count.distinct entity_id.").
		WithArgs("%template:tpl-1%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	usage, err := store.TemplateUsage(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("TemplateUsage: %v", err)
	}
	if usage != 4 {
		t.Fatalf("usage = %d, want 4", usage)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
