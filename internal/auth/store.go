package auth

import "context"

// UserStore describes persistence operations on back-office accounts.
// Implementations return ErrNotFound for missing users and ErrConflict for
// duplicate emails.
type UserStore interface {
	UserLookup
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, id string, role Role) (User, error)
	SetActive(ctx context.Context, id string, active bool) (User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
