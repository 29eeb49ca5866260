package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecportal.org/internal/ids"
)

// Service implements account operations: login, password changes and
// user administration.
type Service struct {
	store UserStore
	now   func() time.Time
}

// NewService constructs a Service backed by store.
func NewService(store UserStore) (*Service, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// Login checks credentials and returns the account's identity.
// Inactive accounts are rejected with ErrDeactivated after the password matches.
func (s *Service) Login(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !user.Active {
		return Identity{}, ErrDeactivated
	}
	return user.Identity(), nil
}

// ChangePassword replaces the password of userID after verifying current.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if current == next {
		return fmt.Errorf("%w: new password must differ from the current one", ErrInvalidInput)
	}
	user, err := s.store.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// CreateUser validates and stores a new account.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = RoleViewer
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user := User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// GetUser returns the account with id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, id)
}

// UpdateRole changes the role of userID on behalf of actor.
func (s *Service) UpdateRole(ctx context.Context, actor Identity, userID string, role Role) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}
	if userID == actor.UserID {
		return User{}, ErrSelfModification
	}
	return s.store.UpdateRole(ctx, userID, role)
}

// SetActive activates or deactivates userID on behalf of actor.
func (s *Service) SetActive(ctx context.Context, actor Identity, userID string, active bool) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if userID == actor.UserID {
		return User{}, ErrSelfModification
	}
	return s.store.SetActive(ctx, userID, active)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
