package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecp_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecp_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecp_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecp_authz_decisions_total",
			Help: "Authorization guard decisions by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecp_audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecp_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter, by bucket.",
		},
		[]string{"bucket"},
	)

	rateLimitStoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecp_rate_limit_store_errors_total",
		Help: "Rate limit store failures; requests were let through.",
	})

	registerOnce sync.Once
	ready        atomic.Bool
)

// Init registers the portal metrics in the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, auditWriteFailures,
			rateLimitRejections, rateLimitStoreErrors,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness flag reported by Ready.
func SetReady(v bool) { ready.Store(v) }

// Ready reports the last value passed to SetReady.
func Ready() bool { return ready.Load() }

// ObserveAuthzDecision counts one guard decision.
func ObserveAuthzDecision(mode, outcome string) {
	authzDecisions.WithLabelValues(mode, outcome).Inc()
}

// ObserveAuditFailure counts one dropped audit entry.
func ObserveAuditFailure() { auditWriteFailures.Inc() }

// ObserveRateLimited counts one rejected request for bucket.
func ObserveRateLimited(bucket string) {
	rateLimitRejections.WithLabelValues(bucket).Inc()
}

// ObserveRateLimitStoreError counts one failed counter update.
func ObserveRateLimitStoreError() { rateLimitStoreErrors.Inc() }

// Instrument records RPS, latency and in-flight requests per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers and locale prefixes so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	if len(parts) > 0 && (parts[0] == "bn" || parts[0] == "en") {
		parts[0] = ":locale"
	}
	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "admin" && parts[2] == "users" {
		parts[3] = ":id"
		if len(parts) > 5 {
			return "/api/admin/users/:id/other"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// StatusWriter remembers the status code written through it.
type StatusWriter struct {
	http.ResponseWriter
	Code        int
	wroteHeader bool
}

func (w *StatusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.Code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}
