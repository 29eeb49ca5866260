package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrSelfModification   = errors.New("auth: cannot modify own account")

	// Guard outcomes.
	ErrUnauthenticated = errors.New("auth: authentication required")
	ErrDeactivated     = errors.New("auth: account deactivated")
	ErrForbidden       = errors.New("auth: insufficient role")
)
