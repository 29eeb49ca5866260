package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "ecportal"
	defaultSessionTTL = 8 * time.Hour
	minSecretLength   = 32
	clockSkew         = 5 * time.Second
)

var errShortSecret = fmt.Errorf("session secret must be at least %d bytes", minSecretLength)

// SessionClaims is the decoded payload of a session token.
type SessionClaims struct {
	Role   string `json:"role"`
	Active bool   `json:"active"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity rebuilds the principal carried by the token.
func (c *SessionClaims) Identity() Identity {
	return Identity{
		UserID: c.Subject,
		Role:   Role(c.Role),
		Active: c.Active,
		Name:   c.Name,
		Email:  c.Email,
	}
}

// SessionCodec signs and verifies HS256 session tokens.
type SessionCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a SessionCodec.
type CodecOption func(*SessionCodec)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *SessionCodec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithSessionTTL sets the default token lifetime.
func WithSessionTTL(ttl time.Duration) CodecOption {
	return func(c *SessionCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *SessionCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewSessionCodec builds a codec around the signing secret.
func NewSessionCodec(secret string, opts ...CodecOption) (*SessionCodec, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return nil, errShortSecret
	}
	c := &SessionCodec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the default token lifetime.
func (c *SessionCodec) TTL() time.Duration { return c.ttl }

// Issue signs a session token for id. A non-positive ttl uses the default.
func (c *SessionCodec) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, id.Role)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := SessionClaims{
		Role:   string(id.Role),
		Active: id.Active,
		Name:   id.Name,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the token signature and required claims. Every failure
// collapses to ErrInvalidToken.
func (c *SessionCodec) Parse(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithLeeway(clockSkew))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := c.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *SessionCodec) validateClaims(claims *SessionClaims) error {
	if claims.Issuer != c.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := c.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return err
	}
	claims.Role = string(role)
	return nil
}
