// Package ratelimit implements fixed-window request limiting over a
// pluggable counter store.
package ratelimit

import (
	"context"
	"time"
)

// Store counts hits per key inside a fixed window.
type Store interface {
	// Increment adds one hit for key and returns the hit count of the
	// current window together with the time the window ends. The first
	// hit for a key opens a window of the given length.
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
	// Reset forgets key.
	Reset(ctx context.Context, key string) error
}
