package auth

import (
	"fmt"
	"strings"
)

// Role is a back-office role. Roles are totally ordered by rank.
type Role string

const (
	RoleViewer     Role = "VIEWER"
	RoleSupport    Role = "SUPPORT"
	RoleManagement Role = "MANAGEMENT"
	RoleAdmin      Role = "ADMIN"
)

var orderedRoles = []Role{RoleViewer, RoleSupport, RoleManagement, RoleAdmin}

// Roles returns every role, lowest rank first.
func Roles() []Role {
	out := make([]Role, len(orderedRoles))
	copy(out, orderedRoles)
	return out
}

// Rank returns the position of r in the role order, starting at 1.
// It panics for values outside the fixed set; use ParseRole at trust boundaries.
func (r Role) Rank() int {
	for i, known := range orderedRoles {
		if r == known {
			return i + 1
		}
	}
	panic(fmt.Sprintf("auth: unknown role %q", string(r)))
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	for _, known := range orderedRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// Satisfies reports whether a principal holding actual passes a gate that
// demands at least required.
func Satisfies(actual, required Role) bool {
	return actual.Rank() >= required.Rank()
}

// ParseRole normalizes raw into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, raw)
	}
	return role, nil
}
