// Package httpapi exposes the portal's JSON API, guarded page shells and
// health endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"ecportal.org/internal/audit"
	"ecportal.org/internal/auth"
	"ecportal.org/internal/clientip"
	"ecportal.org/internal/locale"
	"ecportal.org/internal/obs"
	"ecportal.org/internal/ratelimit"
)

const serviceName = "ecportal"

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// ReadyCheck pings the optional database and redis backends.
type ReadyCheck struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Options wires the API's collaborators.
type Options struct {
	Version      string
	Accounts     *auth.Service
	Resolver     *auth.Resolver
	Audit        *audit.Logger
	Routes       *auth.RouteTable
	Limiter      *ratelimit.Limiter
	LoginLimiter *ratelimit.Limiter
	Ready        Checker
	SecureCookie bool
	MaxBodyBytes int64
	ClientIP     *clientip.Resolver
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	accounts     *auth.Service
	guard        *auth.Guard
	resolver     *auth.Resolver
	audit        *audit.Logger
	routes       *auth.RouteTable
	limiter      *ratelimit.Limiter
	loginLimiter *ratelimit.Limiter
	health       *HealthServer
	pages        *pageRenderer
	version      string
	secureCookie bool
	maxBody      int64
	clientIP     *clientip.Resolver
}

// New validates opts and registers every route.
func New(opts Options) (*API, error) {
	if opts.Accounts == nil || opts.Resolver == nil || opts.Audit == nil {
		return nil, errors.New("httpapi: accounts, resolver and audit are required")
	}
	guard, err := auth.NewGuard(opts.Resolver,
		auth.WithErrorWriter(writeError),
		auth.WithLocale(locale.FromRequest),
	)
	if err != nil {
		return nil, err
	}
	routes := opts.Routes
	if routes == nil {
		routes = auth.DefaultRoutes()
	}
	ready := opts.Ready
	if ready == nil {
		ready = ReadyCheck{}
	}
	clientIP := opts.ClientIP
	if clientIP == nil {
		clientIP, _ = clientip.NewResolver(nil)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	a := &API{
		mux:          http.NewServeMux(),
		accounts:     opts.Accounts,
		guard:        guard,
		resolver:     opts.Resolver,
		audit:        opts.Audit,
		routes:       routes,
		limiter:      opts.Limiter,
		loginLimiter: opts.LoginLimiter,
		health:       NewHealthServer(ready),
		pages:        newPageRenderer(),
		version:      opts.Version,
		secureCookie: opts.SecureCookie,
		maxBody:      maxBody,
		clientIP:     clientIP,
	}
	a.registerRoutes()
	return a, nil
}

func (a *API) registerRoutes() {
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())
	a.mux.HandleFunc("/api/info", a.Info)

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.Handle("/api/auth/logout", a.guard.API(auth.RoleViewer, a.handleLogout))
	a.mux.Handle("/api/auth/me", a.guard.API(auth.RoleViewer, a.handleMe))
	a.mux.Handle("/api/auth/password", a.guard.API(auth.RoleViewer, a.handleChangePassword))

	a.mux.Handle("/api/admin/users", a.guard.API(auth.RoleAdmin, a.handleUsersCollection))
	a.mux.Handle("/api/admin/users/", a.guard.API(auth.RoleAdmin, a.handleUserResource))
	a.mux.Handle("/api/admin/audit-logs", a.guard.API(auth.RoleAdmin, a.handleAuditLogs))
	a.mux.Handle("/api/management/audit-logs/me", a.guard.API(auth.RoleManagement, a.handleOwnAuditLogs))
	a.mux.Handle("/api/support/session", a.guard.API(auth.RoleSupport, a.handleSupportSession))

	a.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	a.mux.HandleFunc("/", a.handlePage)
}

// Handler returns the full pipeline: request id, rate limit, page
// authorization and locale negotiation run in that order, with metrics,
// logging and hardening around them. The client address is resolved
// before any stage reads it.
func (a *API) Handler() http.Handler {
	return obs.Instrument(Chain(a.mux,
		a.clientIP.Middleware,
		RequestID,
		Logging,
		SecurityHeaders,
		MaxBodyBytes(a.maxBody),
		RateLimit(a.limiter),
		PageAuth(a.guard, a.routes),
		locale.Middleware,
	))
}

// Health returns the gRPC health service fed by the readiness check.
func (a *API) Health() *HealthServer { return a.health }

// Guard exposes the authorization guard used by the API.
func (a *API) Guard() *auth.Guard { return a.guard }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.health.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"locales": locale.Supported(),
	})
}
