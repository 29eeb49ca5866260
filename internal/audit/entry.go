package audit

import (
	"context"
	"math"
	"time"
)

// Action tags recorded by the portal.
const (
	ActionLoginSuccess   = "LOGIN_SUCCESS"
	ActionLoginFailed    = "LOGIN_FAILED"
	ActionLogout         = "LOGOUT"
	ActionPasswordChange = "PASSWORD_CHANGE"
	ActionUserCreate     = "USER_CREATE"
	ActionRoleChange     = "USER_ROLE_CHANGE"
	ActionUserActivate   = "USER_ACTIVATE"
	ActionUserDeactivate = "USER_DEACTIVATE"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Entry is an immutable record of a security-relevant action.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects entries for listing. Zero Page and Limit use defaults.
type Filter struct {
	Page   int
	Limit  int
	Search string
	Action string
	UserID string
}

// Normalize applies pagination defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset is the number of entries skipped before the current page. Pages
// too far out to address saturate instead of overflowing, so they read as
// past the end.
func (f Filter) Offset() int {
	f = f.Normalize()
	if f.Page-1 > (math.MaxInt-f.Limit)/f.Limit {
		return math.MaxInt - f.Limit
	}
	return (f.Page - 1) * f.Limit
}

// Pagination describes the page returned by List.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is one page of entries, newest first.
type Page struct {
	Entries    []Entry    `json:"entries"`
	Pagination Pagination `json:"pagination"`
}

// Store persists audit entries. List receives a normalized filter and
// returns the page of entries plus the total number of matches.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, int, error)
}
