// Package audit records security-relevant actions. Recording is best
// effort: persistence failures are logged and counted, never returned.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"ecportal.org/internal/clientip"
	"ecportal.org/internal/ids"
	"ecportal.org/internal/obs"
)

const (
	maxUserAgent = 512
	maxIPAddress = 64
)

// Logger appends audit entries to a Store.
type Logger struct {
	store Store
	now   func() time.Time

	mu       sync.Mutex
	inflight sync.WaitGroup
	failLog  rate.Sometimes
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithFailureLogInterval throttles repeated store-failure log lines to
// the first few and then one per interval.
func WithFailureLogInterval(d time.Duration) Option {
	return func(l *Logger) {
		l.failLog = rate.Sometimes{First: 3, Interval: d}
	}
}

// NewLogger constructs a Logger writing to store.
func NewLogger(store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Logger{
		store:   store,
		now:     time.Now,
		failLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record appends one entry. It returns once the store call finished; any
// store error or panic is logged and swallowed. Identifiers are assigned
// under a lock so (created_at, id) follows call order; the store call
// itself runs outside it.
func (l *Logger) Record(ctx context.Context, userID, action, details, sourceIP, userAgent string) {
	action = clean(strings.TrimSpace(action), 0)
	if action == "" {
		obs.Logger().Warn().Str("user_id", userID).Msg("audit: empty action dropped")
		return
	}

	l.mu.Lock()
	now := l.now()
	entry := Entry{
		ID:        ids.NewAt(now),
		UserID:    clean(userID, 0),
		Action:    action,
		Details:   clean(details, 0),
		IPAddress: clean(sourceIP, maxIPAddress),
		UserAgent: clean(userAgent, maxUserAgent),
		CreatedAt: now.UTC(),
	}
	l.mu.Unlock()

	if err := l.append(ctx, entry); err != nil {
		obs.ObserveAuditFailure()
		l.failLog.Do(func() {
			obs.Logger().Error().Err(err).
				Str("request_id", RequestIDFromContext(ctx)).
				Str("user_id", entry.UserID).
				Str("action", action).
				Msg("audit: write failed")
		})
	}
}

// clean makes s storable as PostgreSQL text: invalid UTF-8 and NUL bytes
// are dropped and, when max > 0, s is cut to at most max bytes on a rune
// boundary.
func clean(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	if max > 0 && len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

func (l *Logger) append(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit store panic: %v", r)
		}
	}()
	return l.store.Append(ctx, entry)
}

// RecordRequest records an action using the client address and user agent
// of r. Non-string details are JSON encoded.
func (l *Logger) RecordRequest(r *http.Request, userID, action string, details any) {
	l.Record(r.Context(), userID, action, encodeDetails(details), clientip.FromRequest(r), r.UserAgent())
}

// RecordAsync records on a detached goroutine. The entry survives
// cancellation of ctx; Wait blocks until pending writes finish.
func (l *Logger) RecordAsync(ctx context.Context, userID, action, details, sourceIP, userAgent string) {
	detached := context.WithoutCancel(ctx)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.Record(detached, userID, action, details, sourceIP, userAgent)
	}()
}

// Wait blocks until every RecordAsync call has completed.
func (l *Logger) Wait() {
	l.inflight.Wait()
}

// List returns one page of entries matching f, newest first.
func (l *Logger) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	f.Search = strings.TrimSpace(f.Search)
	f.Action = strings.TrimSpace(f.Action)
	f.UserID = strings.TrimSpace(f.UserID)

	entries, total, err := l.store.List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list audit entries: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	pages := 0
	if total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return Page{
		Entries: entries,
		Pagination: Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

func encodeDetails(details any) string {
	switch v := details.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf("%v", details)
	}
	return string(data)
}
