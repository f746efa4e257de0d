package ratelimit

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/ashita-ai/kensa/internal/ctxutil"
)

// KeyFunc extracts the rate limit key from a request.
// Returns empty string to skip rate limiting for this request.
type KeyFunc func(r *http.Request) string

// Middleware returns HTTP middleware that enforces limiter per key. Limiter
// errors are logged and the request is let through.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		if _, noop := limiter.(NoopLimiter); noop {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("ratelimit: limiter error, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				logger.Info("ratelimit: request throttled",
					"path", r.URL.Path,
					"request_id", ctxutil.RequestIDFromContext(r.Context()))
				writeRateLimitError(w, retryAfter(limiter, key), ctxutil.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the Retry-After value in whole seconds, at least 1.
func retryAfter(limiter Limiter, key string) int {
	ra, ok := limiter.(retryAdvisor)
	if !ok {
		return 1
	}
	secs := int(math.Ceil(ra.RetryAfter(key).Seconds()))
	return max(secs, 1)
}

func writeRateLimitError(w http.ResponseWriter, retryAfterSecs int, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      "too many requests",
		"request_id": requestID,
	})
}

// CallerKeyFunc keys requests that forward a bearer token by a digest of the
// token, so callers sharing a proxy get separate buckets. Other requests fall
// back to IPKeyFunc.
func CallerKeyFunc(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if tok = strings.TrimSpace(tok); tok != "" {
			sum := blake2b.Sum256([]byte(tok))
			return "caller:" + hex.EncodeToString(sum[:8])
		}
	}
	return IPKeyFunc(r)
}

// IPKeyFunc extracts the client IP from RemoteAddr. X-Forwarded-For is not
// trusted: any client can set it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
