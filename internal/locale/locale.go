// Package locale negotiates the page locale (Bengali or English) and
// keeps it in the URL prefix.
package locale

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

const (
	Bengali = "bn"
	English = "en"

	Default    = Bengali
	CookieName = "NEXT_LOCALE"

	cookieMaxAge = 365 * 24 * 60 * 60
)

var (
	supported = []string{Bengali, English}
	matcher   = language.NewMatcher([]language.Tag{language.Bengali, language.English})
)

type ctxKey struct{}

// Supported returns the accepted locale codes, default first.
func Supported() []string {
	out := make([]string, len(supported))
	copy(out, supported)
	return out
}

// IsSupported reports whether code is a portal locale.
func IsSupported(code string) bool {
	for _, s := range supported {
		if code == s {
			return true
		}
	}
	return false
}

// Split separates a leading locale segment from path. It returns the
// locale ("" when absent) and the remaining path, which always starts with "/".
func Split(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	first, rest, _ := strings.Cut(trimmed, "/")
	if !IsSupported(first) {
		return "", path
	}
	return first, "/" + rest
}

// Negotiate picks the locale of r: path prefix, then cookie, then
// Accept-Language, then Default.
func Negotiate(r *http.Request) string {
	if loc, _ := Split(r.URL.Path); loc != "" {
		return loc
	}
	if c, err := r.Cookie(CookieName); err == nil && IsSupported(c.Value) {
		return c.Value
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		if loc, ok := matchHeader(header); ok {
			return loc
		}
	}
	return Default
}

func matchHeader(header string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return supported[idx], true
}

// WithLocale stores loc in ctx.
func WithLocale(ctx context.Context, loc string) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// FromContext returns the locale stored by the middleware, or Default.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return Default
}

// FromRequest returns the negotiated locale of r, preferring the value
// stored in its context.
func FromRequest(r *http.Request) string {
	if v, ok := r.Context().Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return Negotiate(r)
}

var skipPrefixes = []string{"/api/", "/static/"}
var skipExact = []string{"/api", "/metrics", "/healthz", "/readyz", "/favicon.ico"}

func skipped(path string) bool {
	for _, p := range skipExact {
		if path == p {
			return true
		}
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware redirects unprefixed page paths to their localized form and
// stores the locale of prefixed ones in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		loc, _ := Split(r.URL.Path)
		if loc == "" {
			loc = Negotiate(r)
			target := "/" + loc + r.URL.Path
			if r.URL.Path == "/" {
				target = "/" + loc
			}
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}
		if c, err := r.Cookie(CookieName); err != nil || c.Value != loc {
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    loc,
				Path:     "/",
				MaxAge:   cookieMaxAge,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), loc)))
	})
}
