package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore remembers sessions that ended before their expiry.
// Tokens are identified by their jti; RevokeUser invalidates every token a
// user was issued before the given instant.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error
	RevokeUser(ctx context.Context, userID string, before time.Time) error
	IsRevoked(ctx context.Context, tokenID, userID string, issuedAt time.Time) (bool, error)
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)

// MemoryRevocationStore keeps revocations in process memory. Entries are
// dropped once the token they name has expired.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore returns an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID, _ string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, id)
		}
	}
	s.tokens[tokenID] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, before time.Time) error {
	if userID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.cutoffs[userID]; !ok || before.After(prev) {
		s.cutoffs[userID] = before
	}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID, userID string, issuedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tokenID]; ok && tokenID != "" {
		return true, nil
	}
	if cutoff, ok := s.cutoffs[userID]; ok && issuedAt.Before(cutoff) {
		return true, nil
	}
	return false, nil
}
