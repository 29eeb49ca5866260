package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"ecportal.org/internal/audit"
)

var auditCols = []string{"id", "user_id", "action", "details", "ip_address", "user_agent", "created_at"}

func TestAuditAppend(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec("insert into audit_logs").
		WithArgs("e1", sqlmock.AnyArg(), audit.ActionLoginSuccess, "", "127.0.0.1", "ua", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Audit().Append(context.Background(), audit.Entry{
		ID: "e1", UserID: "u1", Action: audit.ActionLoginSuccess, IPAddress: "127.0.0.1", UserAgent: "ua", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuditListFilters(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	f := audit.Filter{Page: 2, Limit: 1, Action: "logout", UserID: "u1", Search: "50%"}.Normalize()

	mock.ExpectQuery("select count\\(\\*\\) from audit_logs where upper\\(action\\) = upper\\(\\$1\\) and user_id = \\$2 and \\(action ilike \\$3").
		WithArgs("logout", "u1", `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("order by created_at desc, id desc\\s+limit \\$4 offset \\$5").
		WithArgs("logout", "u1", `%50\%%`, 1, 1).
		WillReturnRows(sqlmock.NewRows(auditCols).AddRow("e2", nil, "LOGOUT", "50% done", "::1", "ua", now))

	entries, total, err := store.Audit().List(context.Background(), f)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(entries) != 1 || entries[0].UserID != "" {
		t.Fatalf("unexpected result total=%d entries=%+v", total, entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuditListPastEnd(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select count\\(\\*\\) from audit_logs$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	entries, total, err := store.Audit().List(context.Background(), audit.Filter{Page: 5}.Normalize())
	if err != nil || total != 2 || len(entries) != 0 {
		t.Fatalf("unexpected %v %d %v", entries, total, err)
	}
}
