package auth

import "time"

// Identity is the authenticated principal of a single request.
type Identity struct {
	UserID string `json:"id"`
	Role   Role   `json:"role"`
	Active bool   `json:"is_active"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// User is a persisted back-office account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity projects the account onto a request principal.
func (u User) Identity() Identity {
	return Identity{
		UserID: u.ID,
		Role:   u.Role,
		Active: u.Active,
		Name:   u.Name,
		Email:  u.Email,
	}
}

// NewUser carries the fields accepted when creating an account.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     Role
	Active   bool
}
