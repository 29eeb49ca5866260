package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCookieName = "ecp_session"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// UserLookup fetches the current state of an account.
type UserLookup interface {
	Find(ctx context.Context, id string) (User, error)
}

// Resolver turns the credentials carried by a request into an Identity.
type Resolver struct {
	codec       *SessionCodec
	users       UserLookup
	revocations RevocationStore
	cookieName  string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithUserLookup makes every resolution re-read role and active flag from users.
func WithUserLookup(users UserLookup) ResolverOption {
	return func(r *Resolver) { r.users = users }
}

// WithRevocations makes resolution reject tokens recorded in store, and
// enables EndSession and EndUserSessions.
func WithRevocations(store RevocationStore) ResolverOption {
	return func(r *Resolver) { r.revocations = store }
}

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) ResolverOption {
	return func(r *Resolver) {
		if name = strings.TrimSpace(name); name != "" {
			r.cookieName = name
		}
	}
}

// NewResolver constructs a Resolver around codec.
func NewResolver(codec *SessionCodec, opts ...ResolverOption) (*Resolver, error) {
	if codec == nil {
		return nil, errors.New("session codec is required")
	}
	r := &Resolver{codec: codec, cookieName: DefaultCookieName}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CookieName returns the name of the session cookie.
func (r *Resolver) CookieName() string { return r.cookieName }

// Codec exposes the codec used to sign sessions.
func (r *Resolver) Codec() *SessionCodec { return r.codec }

// Resolve returns the request's identity, or nil when there is no usable
// session. Missing, malformed, expired and revoked tokens are all "no session".
// An error is returned only when the account lookup itself fails.
func (r *Resolver) Resolve(req *http.Request) (*Identity, error) {
	token := r.extractToken(req)
	if token == "" {
		return nil, nil
	}
	claims, err := r.codec.Parse(token)
	if err != nil {
		return nil, nil
	}
	if r.revocations != nil {
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		revoked, err := r.revocations.IsRevoked(req.Context(), claims.ID, claims.Subject, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("check session revocation: %w", err)
		}
		if revoked {
			return nil, nil
		}
	}
	id := claims.Identity()
	if r.users == nil {
		return &id, nil
	}

	user, err := r.users.Find(req.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve session user: %w", err)
	}
	id.Role = user.Role
	id.Active = user.Active
	id.Name = user.Name
	id.Email = user.Email
	return &id, nil
}

// Require is the strict variant of Resolve: no session is ErrUnauthenticated.
func (r *Resolver) Require(req *http.Request) (Identity, error) {
	id, err := r.Resolve(req)
	if err != nil {
		return Identity{}, err
	}
	if id == nil {
		return Identity{}, ErrUnauthenticated
	}
	return *id, nil
}

// EndSession revokes the token carried by req until it would have expired.
// Requests without a valid token are a no-op.
func (r *Resolver) EndSession(req *http.Request) error {
	if r.revocations == nil {
		return nil
	}
	claims, err := r.codec.Parse(r.extractToken(req))
	if err != nil {
		return nil
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return r.revocations.Revoke(req.Context(), claims.ID, claims.Subject, expiresAt)
}

// EndUserSessions revokes every token issued to userID before now. Tokens
// issued later in the same second stay valid, since iat has second
// precision.
func (r *Resolver) EndUserSessions(ctx context.Context, userID string) error {
	if r.revocations == nil {
		return nil
	}
	return r.revocations.RevokeUser(ctx, userID, r.codec.now().UTC().Truncate(time.Second))
}

// Token returns the raw session token carried by req, if any.
func (r *Resolver) Token(req *http.Request) string {
	return r.extractToken(req)
}

func (r *Resolver) extractToken(req *http.Request) string {
	if req == nil {
		return ""
	}
	if token, ok := bearerToken(req.Header.Get(authHeader)); ok {
		return token
	}
	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}
