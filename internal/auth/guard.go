package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"ecportal.org/internal/obs"
)

const (
	modePage = "page"
	modeAPI  = "api"

	// DeactivatedLoginError is the error indicator appended to the login
	// redirect for deactivated accounts.
	DeactivatedLoginError = "AccountDeactivated"
)

// ErrorWriter renders an API-mode denial.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// Guard is the single authorization choke point for pages and API handlers.
type Guard struct {
	resolver    *Resolver
	writeError  ErrorWriter
	localeOf    func(*http.Request) string
	loginPath   string
	deniedPath  string
	callbackKey string
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithErrorWriter replaces the JSON renderer used in API mode.
func WithErrorWriter(fn ErrorWriter) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.writeError = fn
		}
	}
}

// WithLocale supplies the locale prefix for page-mode redirects.
func WithLocale(fn func(*http.Request) string) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.localeOf = fn
		}
	}
}

// NewGuard constructs a Guard on top of resolver.
func NewGuard(resolver *Resolver, opts ...GuardOption) (*Guard, error) {
	if resolver == nil {
		return nil, errors.New("session resolver is required")
	}
	g := &Guard{
		resolver:    resolver,
		writeError:  defaultErrorWriter,
		localeOf:    func(*http.Request) string { return "" },
		loginPath:   "/login",
		deniedPath:  "/unauthorized",
		callbackKey: "callbackUrl",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Resolver returns the underlying session resolver.
func (g *Guard) Resolver() *Resolver { return g.resolver }

// Authorize decides whether the request may proceed with at least min.
// Checks run in a fixed order: session present, account active, role rank.
func (g *Guard) Authorize(r *http.Request, min Role) (Identity, error) {
	id, err := g.resolver.Resolve(r)
	if err != nil {
		return Identity{}, err
	}
	if id == nil {
		return Identity{}, ErrUnauthenticated
	}
	if !id.Active {
		return Identity{}, ErrDeactivated
	}
	if !id.Role.Valid() || !Satisfies(id.Role, min) {
		return Identity{}, ErrForbidden
	}
	return *id, nil
}

// RequireAPI runs Authorize and, on failure, writes a JSON error.
// Callers must return immediately when ok is false.
func (g *Guard) RequireAPI(w http.ResponseWriter, r *http.Request, min Role) (Identity, bool) {
	id, err := g.Authorize(r, min)
	observe(r, modeAPI, min, err)
	if err == nil {
		return id, true
	}
	status := StatusFor(err)
	g.writeError(w, r, status, ErrorCode(err), errorMessage(err))
	return Identity{}, false
}

// RequirePage runs Authorize and, on failure, redirects to the login or
// unauthorized page. Nothing is written to the body.
func (g *Guard) RequirePage(w http.ResponseWriter, r *http.Request, min Role) (Identity, bool) {
	id, err := g.Authorize(r, min)
	observe(r, modePage, min, err)
	if err == nil {
		return id, true
	}
	http.Redirect(w, r, g.pageTarget(r, err), http.StatusTemporaryRedirect)
	return Identity{}, false
}

// API wraps next so it only runs for identities holding at least min.
func (g *Guard) API(min Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.RequireAPI(w, r, min)
		if !ok {
			return
		}
		next(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// Page is the page-mode counterpart of API.
func (g *Guard) Page(min Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.RequirePage(w, r, min)
		if !ok {
			return
		}
		next(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func (g *Guard) pageTarget(r *http.Request, err error) string {
	prefix := ""
	if loc := g.localeOf(r); loc != "" {
		prefix = "/" + loc
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		q := url.Values{}
		q.Set(g.callbackKey, r.URL.RequestURI())
		return prefix + g.loginPath + "?" + q.Encode()
	case errors.Is(err, ErrDeactivated):
		q := url.Values{}
		q.Set("error", DeactivatedLoginError)
		return prefix + g.loginPath + "?" + q.Encode()
	case errors.Is(err, ErrForbidden):
		return prefix + g.deniedPath
	default:
		// Session backend failure: send the user to login rather than render.
		return prefix + g.loginPath
	}
}

// StatusFor maps guard errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrDeactivated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// ErrorCode returns the machine-readable code for a guard error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrDeactivated):
		return "deactivated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "session_unavailable"
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "authentication required"
	case errors.Is(err, ErrDeactivated):
		return "account is deactivated"
	case errors.Is(err, ErrForbidden):
		return "insufficient permissions"
	default:
		return "session service unavailable"
	}
}

func observe(r *http.Request, mode string, min Role, err error) {
	outcome := "allowed"
	if err != nil {
		outcome = ErrorCode(err)
	}
	obs.ObserveAuthzDecision(mode, outcome)
	if err == nil {
		return
	}
	ev := obs.Logger().Debug()
	if StatusFor(err) == http.StatusServiceUnavailable {
		ev = obs.Logger().Error().Err(err)
	}
	ev.Str("mode", mode).
		Str("path", r.URL.Path).
		Str("required_role", string(min)).
		Str("outcome", outcome).
		Msg("authorization denied")
}

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
