package ratelimit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"ecportal.org/internal/clientip"
	"ecportal.org/internal/obs"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the number of whole seconds until the window resets.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter lets Limit hits per key through in every Window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	name   string
	now    func() time.Time
}

// NewLimiter builds a limiter named name (used as the metric bucket and key prefix).
func NewLimiter(store Store, name string, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limit and window must be positive")
	}
	if name == "" {
		name = "default"
	}
	return &Limiter{store: store, limit: limit, window: window, name: name, now: time.Now}, nil
}

// Allow records a hit for key. Store failures let the hit through.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	count, resetAt, err := l.store.Increment(ctx, l.name+":"+key, l.window)
	if err != nil {
		obs.ObserveRateLimitStoreError()
		obs.Logger().Warn().Err(err).Str("bucket", l.name).Msg("rate limit store failed, allowing request")
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: l.now().Add(l.window)}
	}
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, l.name+":"+key)
}

// RejectFunc renders a 429 response.
type RejectFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// Middleware limits requests per client IP. Rejected requests are passed
// to reject after the rate-limit headers are set.
func (l *Limiter) Middleware(reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, _ Decision) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), clientip.FromRequest(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				obs.ObserveRateLimited(l.name)
				h.Set("Retry-After", strconv.Itoa(d.RetryAfter(l.now())))
				reject(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
