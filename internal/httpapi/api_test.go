package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ecportal.org/internal/audit"
	"ecportal.org/internal/auth"
	"ecportal.org/internal/clientip"
	"ecportal.org/internal/ratelimit"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-horse"
)

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	codec    *auth.SessionCodec
	accounts *auth.Service
	audit    *audit.MemoryStore
	users    map[auth.Role]auth.User
}

type testOption func(*Options)

func newTestAPI(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	users := auth.NewMemoryUserStore()
	accounts, err := auth.NewService(users)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	codec, err := auth.NewSessionCodec(testSecret)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	resolver, err := auth.NewResolver(codec,
		auth.WithUserLookup(users),
		auth.WithRevocations(auth.NewMemoryRevocationStore()))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	auditStore := audit.NewMemoryStore()
	auditLog, err := audit.NewLogger(auditStore)
	if err != nil {
		t.Fatalf("audit logger: %v", err)
	}

	seeded := make(map[auth.Role]auth.User)
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleManagement, auth.RoleSupport, auth.RoleViewer} {
		u, err := accounts.CreateUser(context.Background(), auth.NewUser{
			Name:     strings.ToLower(string(role)),
			Email:    strings.ToLower(string(role)) + "@ec.test",
			Password: testPassword,
			Role:     role,
			Active:   true,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", role, err)
		}
		seeded[role] = u
	}

	o := Options{
		Version:  "test",
		Accounts: accounts,
		Resolver: resolver,
		Audit:    auditLog,
	}
	for _, opt := range opts {
		opt(&o)
	}
	api, err := New(o)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &testEnv{
		server:   srv,
		client:   client,
		codec:    codec,
		accounts: accounts,
		audit:    auditStore,
		users:    seeded,
	}
}

func (e *testEnv) token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, _, err := e.codec.Issue(e.users[role].Identity(), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: token})
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func (e *testEnv) actions() []string {
	entries, _, _ := e.audit.List(context.Background(), audit.Filter{Limit: audit.MaxLimit}.Normalize())
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Action)
	}
	return out
}

func TestUnauthenticatedPageRedirectsToLogin(t *testing.T) {
	env := newTestAPI(t)

	resp := env.do(t, http.MethodGet, "/bn/admin/users?tab=all", "", nil)
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/bn/login" {
		t.Fatalf("expected /bn/login, got %s", loc.Path)
	}
	if got := loc.Query().Get("callbackUrl"); got != "/bn/admin/users?tab=all" {
		t.Fatalf("unexpected callbackUrl %q", got)
	}
}

func TestPublicPagesRender(t *testing.T) {
	env := newTestAPI(t)

	resp := env.do(t, http.MethodGet, "/en/login?error=AccountDeactivated", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), "deactivated") {
		t.Fatalf("expected deactivation notice, got %s", body.String())
	}

	resp = env.do(t, http.MethodGet, "/bn/no-such-page", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnprefixedPageRedirectsToNegotiatedLocale(t *testing.T) {
	env := newTestAPI(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect || resp.Header.Get("Location") != "/en" {
		t.Fatalf("expected redirect to /en, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp = env.do(t, http.MethodGet, "/unauthorized", "", nil)
	if resp.Header.Get("Location") != "/bn/unauthorized" {
		t.Fatalf("expected default locale redirect, got %q", resp.Header.Get("Location"))
	}
}

func TestLoginIssuesSessionAndAudits(t *testing.T) {
	env := newTestAPI(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ADMIN@ec.test",
		"password": testPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var session string
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultCookieName {
			session = c.Value
			if !c.HttpOnly {
				t.Fatalf("session cookie must be HttpOnly")
			}
		}
	}
	if session == "" {
		t.Fatalf("session cookie not set")
	}
	login := decodeBody[loginResponse](t, resp)
	if login.User.Role != auth.RoleAdmin || login.Token != session {
		t.Fatalf("unexpected login response %+v", login)
	}

	me := env.do(t, http.MethodGet, "/api/auth/me", session, nil)
	if me.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", me.StatusCode)
	}
	if id := decodeBody[auth.Identity](t, me); id.UserID != env.users[auth.RoleAdmin].ID {
		t.Fatalf("unexpected identity %+v", id)
	}

	bad := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@ec.test",
		"password": "wrong-password",
	})
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", bad.StatusCode)
	}
	if body := decodeBody[errorBody](t, bad); body.Code != "invalid_credentials" || body.Success {
		t.Fatalf("unexpected error body %+v", body)
	}

	got := env.actions()
	if len(got) != 2 || got[0] != audit.ActionLoginFailed || got[1] != audit.ActionLoginSuccess {
		t.Fatalf("unexpected audit trail %v", got)
	}
}

func TestLoginRateLimited(t *testing.T) {
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	limiter, err := ratelimit.NewLimiter(store, "login", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	env := newTestAPI(t, func(o *Options) { o.LoginLimiter = limiter })

	creds := map[string]string{"email": "viewer@ec.test", "password": "nope-nope"}
	for i := 0; i < 2; i++ {
		if resp := env.do(t, http.MethodPost, "/api/auth/login", "", creds); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if body := decodeBody[errorBody](t, resp); body.Code != "rate_limited" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestDeactivatedMidSessionIsRejected(t *testing.T) {
	env := newTestAPI(t)
	viewer := env.token(t, auth.RoleViewer)

	if resp := env.do(t, http.MethodGet, "/bn/dashboard", viewer, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected dashboard to render, got %d", resp.StatusCode)
	}

	resp := env.do(t, http.MethodPatch, "/api/admin/users/"+env.users[auth.RoleViewer].ID+"/status",
		env.token(t, auth.RoleAdmin), map[string]bool{"is_active": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from status update, got %d", resp.StatusCode)
	}

	// The token still claims an active account; the live lookup wins.
	page := env.do(t, http.MethodGet, "/bn/dashboard", viewer, nil)
	if page.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect, got %d", page.StatusCode)
	}
	if loc := page.Header.Get("Location"); loc != "/bn/login?error=AccountDeactivated" {
		t.Fatalf("unexpected location %q", loc)
	}

	api := env.do(t, http.MethodGet, "/api/auth/me", viewer, nil)
	if api.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", api.StatusCode)
	}
	if body := decodeBody[errorBody](t, api); body.Code != "deactivated" {
		t.Fatalf("unexpected code %q", body.Code)
	}

	got := env.actions()
	if len(got) == 0 || got[0] != audit.ActionUserDeactivate {
		t.Fatalf("expected USER_DEACTIVATE entry, got %v", got)
	}
}

func TestViewerForbiddenFromAdmin(t *testing.T) {
	env := newTestAPI(t)
	viewer := env.token(t, auth.RoleViewer)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/admin/users", nil)
	req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: viewer})
	req.Header.Set("X-Request-ID", "req-forbidden-1")
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	body := decodeBody[errorBody](t, resp)
	if body.Code != "forbidden" || body.RequestID != "req-forbidden-1" {
		t.Fatalf("unexpected body %+v", body)
	}

	page := env.do(t, http.MethodGet, "/en/admin", viewer, nil)
	if page.StatusCode != http.StatusTemporaryRedirect || page.Header.Get("Location") != "/en/unauthorized" {
		t.Fatalf("expected redirect to /en/unauthorized, got %d %q", page.StatusCode, page.Header.Get("Location"))
	}
}

func TestRoleHierarchyOnAPIRoutes(t *testing.T) {
	env := newTestAPI(t)

	cases := []struct {
		path string
		role auth.Role
		want int
	}{
		{"/api/support/session", auth.RoleViewer, http.StatusForbidden},
		{"/api/support/session", auth.RoleSupport, http.StatusOK},
		{"/api/support/session", auth.RoleAdmin, http.StatusOK},
		{"/api/management/audit-logs/me", auth.RoleSupport, http.StatusForbidden},
		{"/api/management/audit-logs/me", auth.RoleManagement, http.StatusOK},
		{"/api/admin/audit-logs", auth.RoleManagement, http.StatusForbidden},
		{"/api/admin/audit-logs", auth.RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		resp := env.do(t, http.MethodGet, tc.path, env.token(t, tc.role), nil)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s as %s: expected %d, got %d", tc.path, tc.role, tc.want, resp.StatusCode)
		}
	}

	if resp := env.do(t, http.MethodGet, "/api/support/session", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}
}

func TestAdminCannotModifySelf(t *testing.T) {
	env := newTestAPI(t)
	admin := env.token(t, auth.RoleAdmin)
	self := env.users[auth.RoleAdmin].ID

	resp := env.do(t, http.MethodPatch, "/api/admin/users/"+self+"/role", admin, map[string]string{"role": "VIEWER"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody[errorBody](t, resp); body.Code != "self_modification" {
		t.Fatalf("unexpected code %q", body.Code)
	}

	resp = env.do(t, http.MethodPatch, "/api/admin/users/"+self+"/status", admin, map[string]bool{"is_active": false})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(env.actions()) != 0 {
		t.Fatalf("rejected changes must not be audited")
	}
}

func TestAdminUserLifecycle(t *testing.T) {
	env := newTestAPI(t)
	admin := env.token(t, auth.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/admin/users", admin, map[string]string{
		"name":     "Field Officer",
		"email":    "officer@ec.test",
		"password": "officer-pass",
		"role":     "support",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody[auth.User](t, resp)
	if created.Role != auth.RoleSupport || !created.Active {
		t.Fatalf("unexpected user %+v", created)
	}
	if resp.Header.Get("Location") != "/api/admin/users/"+created.ID {
		t.Fatalf("unexpected Location %q", resp.Header.Get("Location"))
	}

	dup := env.do(t, http.MethodPost, "/api/admin/users", admin, map[string]string{
		"name":     "Again",
		"email":    "officer@ec.test",
		"password": "officer-pass",
	})
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", dup.StatusCode)
	}

	resp = env.do(t, http.MethodPatch, "/api/admin/users/"+created.ID+"/role", admin, map[string]string{"role": "MANAGEMENT"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if u := decodeBody[auth.User](t, resp); u.Role != auth.RoleManagement {
		t.Fatalf("role not updated: %+v", u)
	}

	list := env.do(t, http.MethodGet, "/api/admin/audit-logs?action=user_role_change", admin, nil)
	if list.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.StatusCode)
	}
	page := decodeBody[audit.Page](t, list)
	if page.Pagination.Total != 1 || page.Entries[0].Action != audit.ActionRoleChange {
		t.Fatalf("unexpected audit page %+v", page)
	}

	if resp := env.do(t, http.MethodGet, "/api/admin/users/missing", admin, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOwnAuditLogsAreScopedToCaller(t *testing.T) {
	env := newTestAPI(t)
	for _, role := range []auth.Role{auth.RoleManagement, auth.RoleAdmin} {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    env.users[role].Email,
			"password": testPassword,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("login %s: %d", role, resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/management/audit-logs/me?userId="+env.users[auth.RoleAdmin].ID,
		env.token(t, auth.RoleManagement), nil)
	page := decodeBody[audit.Page](t, resp)
	if page.Pagination.Total != 1 || page.Entries[0].UserID != env.users[auth.RoleManagement].ID {
		t.Fatalf("unexpected page %+v", page)
	}

	bad := env.do(t, http.MethodGet, "/api/admin/audit-logs?page=zero", env.token(t, auth.RoleAdmin), nil)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestUnknownAPIPathUsesEnvelope(t *testing.T) {
	env := newTestAPI(t)

	resp := env.do(t, http.MethodGet, "/api/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeBody[errorBody](t, resp)
	if body.Code != "not_found" || body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-ID") {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReadyReflectsBackends(t *testing.T) {
	env := newTestAPI(t, func(o *Options) {
		o.Ready = checkerFunc(func(context.Context) error { return context.DeadlineExceeded })
	})
	if resp := env.do(t, http.MethodGet, "/readyz", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestEndToEndScenarios(t *testing.T) {
	env := newTestAPI(t)
	support := env.users[auth.RoleSupport]

	// Admin on a management endpoint proceeds.
	if resp := env.do(t, http.MethodGet, "/api/management/audit-logs/me", env.token(t, auth.RoleAdmin), nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin on management endpoint: expected 200, got %d", resp.StatusCode)
	}

	// Active support on a management endpoint is forbidden.
	resp := env.do(t, http.MethodGet, "/api/management/audit-logs/me", env.token(t, auth.RoleSupport), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("support on management endpoint: expected 403, got %d", resp.StatusCode)
	}

	// Deactivated support on a support endpoint is rejected as deactivated.
	supportToken := env.token(t, auth.RoleSupport)
	if _, err := env.accounts.SetActive(context.Background(), env.users[auth.RoleAdmin].Identity(), support.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	resp = env.do(t, http.MethodGet, "/api/support/session", supportToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("deactivated support: expected 401, got %d", resp.StatusCode)
	}
	if body := decodeBody[errorBody](t, resp); body.Code != "deactivated" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	limiter, err := ratelimit.NewLimiter(store, "login", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	env := newTestAPI(t, func(o *Options) { o.LoginLimiter = limiter })

	body, _ := json.Marshal(map[string]string{"email": "viewer@ec.test", "password": "nope-nope"})
	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/auth/login", bytes.NewReader(body))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp, err := env.client.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	for i, code := range statuses {
		want := http.StatusUnauthorized
		if i >= 2 {
			want = http.StatusTooManyRequests
		}
		if code != want {
			t.Fatalf("attempt %d: expected %d, got %d (all: %v)", i+1, want, code, statuses)
		}
	}
}

func TestForwardedForHonoredFromTrustedProxy(t *testing.T) {
	store := ratelimit.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	limiter, _ := ratelimit.NewLimiter(store, "login", 1, time.Minute)
	resolver, err := clientip.NewResolver([]string{"127.0.0.1", "::1"})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	env := newTestAPI(t, func(o *Options) {
		o.LoginLimiter = limiter
		o.ClientIP = resolver
	})

	body, _ := json.Marshal(map[string]string{"email": "viewer@ec.test", "password": "nope-nope"})
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/auth/login", bytes.NewReader(body))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		resp, err := env.client.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("client %d behind proxy: expected 401, got %d", i, resp.StatusCode)
		}
	}
	entries, _, _ := env.audit.List(context.Background(), audit.Filter{Limit: 1}.Normalize())
	if len(entries) != 1 || entries[0].IPAddress != "203.0.113.2" {
		t.Fatalf("expected audited client address 203.0.113.2, got %+v", entries)
	}
}

func TestAuditLogsHugePageIsEmpty(t *testing.T) {
	env := newTestAPI(t)
	admin := env.token(t, auth.RoleAdmin)
	env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@ec.test", "password": testPassword})

	resp := env.do(t, http.MethodGet, "/api/admin/audit-logs?page=461168601842738792", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page := decodeBody[audit.Page](t, resp)
	if len(page.Entries) != 0 || page.Pagination.Total != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c.Value
		}
	}
	return ""
}

func TestLoggedOutTokenHasNoSession(t *testing.T) {
	env := newTestAPI(t)
	login := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "support@ec.test",
		"password": testPassword,
	})
	session := sessionCookie(login)
	if login.StatusCode != http.StatusOK || session == "" {
		t.Fatalf("login failed: %d", login.StatusCode)
	}
	other := env.token(t, auth.RoleSupport)

	out := env.do(t, http.MethodPost, "/api/auth/logout", session, nil)
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", out.StatusCode)
	}
	if cleared := sessionCookie(out); cleared != "" {
		t.Fatalf("expected cleared cookie, got %q", cleared)
	}

	// The old token is replayed as-is, as a stolen cookie would be.
	me := env.do(t, http.MethodGet, "/api/auth/me", session, nil)
	if me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for logged-out token, got %d", me.StatusCode)
	}
	page := env.do(t, http.MethodGet, "/bn/admin/users", session, nil)
	if page.StatusCode != http.StatusTemporaryRedirect || !strings.HasPrefix(page.Header.Get("Location"), "/bn/login") {
		t.Fatalf("expected redirect to login, got %d %q", page.StatusCode, page.Header.Get("Location"))
	}
	if resp := env.do(t, http.MethodGet, "/api/auth/me", other, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected other session to survive logout, got %d", resp.StatusCode)
	}
}

func TestPasswordChangeEndsCurrentSession(t *testing.T) {
	env := newTestAPI(t)
	session := env.token(t, auth.RoleViewer)

	resp := env.do(t, http.MethodPost, "/api/auth/password", session, map[string]string{
		"current_password": testPassword,
		"new_password":     "a-brand-new-secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	fresh := sessionCookie(resp)
	if fresh == "" || fresh == session {
		t.Fatalf("expected a fresh session cookie, got %q", fresh)
	}
	if me := env.do(t, http.MethodGet, "/api/auth/me", session, nil); me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected old token rejected, got %d", me.StatusCode)
	}
	if me := env.do(t, http.MethodGet, "/api/auth/me", fresh, nil); me.StatusCode != http.StatusOK {
		t.Fatalf("expected fresh token accepted, got %d", me.StatusCode)
	}
}
