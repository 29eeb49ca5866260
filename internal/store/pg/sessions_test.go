package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"ecportal.org/internal/auth"
)

func TestSessionsRevoke(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into revoked_sessions").
		WithArgs("jti-1", "u1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from revoked_sessions where expires_at < now\\(\\)").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.Sessions().Revoke(context.Background(), "jti-1", "u1", exp); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionsRevokeRequiresTokenID(t *testing.T) {
	store, _ := newMockStore(t)
	if err := store.Sessions().Revoke(context.Background(), "", "u1", time.Now()); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSessionsRevokeUser(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("insert into session_cutoffs .* greatest").
		WithArgs("u1", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Sessions().RevokeUser(context.Background(), "u1", cutoff); err != nil {
		t.Fatalf("RevokeUser: %v", err)
	}

	mock.ExpectExec("insert into session_cutoffs").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := store.Sessions().RevokeUser(context.Background(), "ghost", cutoff); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionsIsRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	iat := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select exists .* revoked_sessions .* session_cutoffs").
		WithArgs("jti-1", "u1", iat).
		WillReturnRows(sqlmock.NewRows([]string{"revoked"}).AddRow(true))
	mock.ExpectQuery("select exists").
		WithArgs("jti-2", "u1", iat).
		WillReturnRows(sqlmock.NewRows([]string{"revoked"}).AddRow(false))

	sessions := store.Sessions()
	if revoked, err := sessions.IsRevoked(context.Background(), "jti-1", "u1", iat); err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	if revoked, err := sessions.IsRevoked(context.Background(), "jti-2", "u1", iat); err != nil || revoked {
		t.Fatalf("expected live session, got %v err=%v", revoked, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
