package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ecportal.org/internal/auth"
)

const userColumns = `id, name, email, password_hash, role, is_active, created_at, updated_at`

var _ auth.UserStore = (*Users)(nil)

// Users implements auth.UserStore.
type Users struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		user auth.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.Active, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	user.Role = auth.Role(role)
	return user, nil
}

func (s *Users) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash, role, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $7)
		returning `+userColumns,
		u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, string(u.Role), u.Active, u.CreatedAt)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrCheckViolation:
				return auth.ErrInvalidInput
			}
		}
		return err
	}
	*u = created
	return nil
}

func (s *Users) Find(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return user, err
}

func (s *Users) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return user, err
}

func (s *Users) List(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Users) UpdateRole(ctx context.Context, id string, role auth.Role) (auth.User, error) {
	return s.update(ctx, `update users set role = $2, updated_at = now() where id = $1 returning `+userColumns, id, string(role))
}

func (s *Users) SetActive(ctx context.Context, id string, active bool) (auth.User, error) {
	return s.update(ctx, `update users set is_active = $2, updated_at = now() where id = $1 returning `+userColumns, id, active)
}

func (s *Users) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Users) update(ctx context.Context, query string, args ...any) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrCheckViolation {
		return auth.User{}, auth.ErrInvalidInput
	}
	return user, err
}
