package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ecportal.org/internal/obs"
)

func TestChainRunsStagesInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), stage("request_id"), stage("rate_limit"), stage("auth"), stage("locale"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "request_id,rate_limit,auth,locale,handler" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected incoming id reused, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "has space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "has space" || seen == "" {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestLoggingEmitsRequestComplete(t *testing.T) {
	var buf bytes.Buffer
	prev := *obs.Logger()
	obs.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { obs.SetLogger(prev) })

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), RequestID, Logging)

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set("X-Request-ID", "log-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "request_complete" || line["request_id"] != "log-1" {
		t.Fatalf("unexpected log line %v", line)
	}
	if status, _ := line["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("unexpected status %v", line["status"])
	}
}

func TestSafeCallback(t *testing.T) {
	cases := map[string]string{
		"/bn/admin":            "/bn/admin",
		"//evil.example":       "",
		"https://evil.example": "",
		`/\evil`:               "",
	}
	for in, want := range cases {
		if got := safeCallback(in); got != want {
			t.Fatalf("safeCallback(%q) = %q, want %q", in, got, want)
		}
	}
}
