// Package ratelimit throttles the HTTP transport.
//
// Limits are per caller: requests forwarding a bearer token are keyed by a
// digest of that token, everything else by client IP. The in-memory token
// bucket (MemoryLimiter) is the only implementation; the Limiter interface
// keeps the middleware independent of it.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Returning an error
	// signals a limiter malfunction; the middleware fails open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources such as cleanup goroutines.
	Close() error
}

// retryAdvisor is implemented by limiters that know when a denied key will be
// admitted again.
type retryAdvisor interface {
	RetryAfter(key string) time.Duration
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// New returns a MemoryLimiter, or a NoopLimiter when rps is not positive.
func New(rps float64, burst int) Limiter {
	if rps <= 0 {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(Options{Rate: rps, Burst: burst})
}
