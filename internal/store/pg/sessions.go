package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ecportal.org/internal/auth"
)

var _ auth.RevocationStore = (*Sessions)(nil)

// Sessions implements auth.RevocationStore.
type Sessions struct {
	db *sql.DB
}

// Revoke records tokenID and drops rows for tokens that have since expired.
func (s *Sessions) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	if tokenID == "" {
		return auth.ErrInvalidInput
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into revoked_sessions (jti, user_id, expires_at)
		values ($1, $2, $3)
		on conflict (jti) do nothing`,
		tokenID, userID, expiresAt.UTC()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `delete from revoked_sessions where expires_at < now()`)
	return err
}

// RevokeUser moves the user's cutoff forward; an earlier cutoff never
// replaces a later one.
func (s *Sessions) RevokeUser(ctx context.Context, userID string, before time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	if userID == "" {
		return auth.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into session_cutoffs (user_id, not_before)
		values ($1, $2)
		on conflict (user_id) do update
		set not_before = greatest(session_cutoffs.not_before, excluded.not_before)`,
		userID, before.UTC())
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (s *Sessions) IsRevoked(ctx context.Context, tokenID, userID string, issuedAt time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from revoked_sessions where jti = $1)
		    or exists (select 1 from session_cutoffs where user_id = $2 and not_before > $3)`,
		tokenID, userID, issuedAt.UTC()).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return revoked, err
}
