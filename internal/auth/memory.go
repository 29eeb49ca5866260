package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ UserStore = (*MemoryUserStore)(nil)

// MemoryUserStore keeps accounts in process memory. Used in development
// when no database is configured, and in tests.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
	now   func() time.Time
}

// NewMemoryUserStore returns an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]User), now: time.Now}
}

func (s *MemoryUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrConflict
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryUserStore) Find(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryUserStore) List(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryUserStore) UpdateRole(_ context.Context, id string, role Role) (User, error) {
	return s.update(id, func(u *User) { u.Role = role })
}

func (s *MemoryUserStore) SetActive(_ context.Context, id string, active bool) (User, error) {
	return s.update(id, func(u *User) { u.Active = active })
}

func (s *MemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := s.update(id, func(u *User) { u.PasswordHash = passwordHash })
	return err
}

func (s *MemoryUserStore) update(id string, fn func(*User)) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return u, nil
}
