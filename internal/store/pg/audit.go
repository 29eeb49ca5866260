package pg

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"ecportal.org/internal/audit"
)

var _ audit.Store = (*AuditLog)(nil)

// AuditLog implements audit.Store. Rows are insert-only.
type AuditLog struct {
	db *sql.DB
}

func (s *AuditLog) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, details, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, nullIfEmpty(e.UserID), e.Action, e.Details, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

func (s *AuditLog) List(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	where, args := auditWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 || f.Offset() >= total {
		return []audit.Entry{}, total, nil
	}

	n := len(args)
	args = append(args, f.Limit, f.Offset())
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, action, details, ip_address, user_agent, created_at
		from audit_logs`+where+`
		order by created_at desc, id desc
		limit $`+strconv.Itoa(n+1)+` offset $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0, f.Limit)
	for rows.Next() {
		var (
			e      audit.Entry
			userID sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &e.Action, &e.Details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.UserID = userID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func auditWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Action != "" {
		conds = append(conds, "upper(action) = upper("+next(f.Action)+")")
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+next(f.UserID))
	}
	if f.Search != "" {
		p := next("%" + escapeLike(f.Search) + "%")
		conds = append(conds, "(action ilike "+p+" or details ilike "+p+" or ip_address ilike "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
