package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/ctxutil"
)

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}
func (erroringLimiter) Close() error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestMiddlewareThrottles(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 2)
	h := Middleware(m, IPKeyFunc, discardLogger())(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		req = req.WithContext(ctxutil.WithRequestID(req.Context(), "req-1"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "too many requests", body["error"])
			assert.Equal(t, "req-1", body["request_id"])
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestMiddlewareRetryAfterFollowsLimiter(t *testing.T) {
	m, _ := newTestLimiter(t, 0.25, 1)
	h := Middleware(m, IPKeyFunc, discardLogger())(okHandler)

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "4", last.Header().Get("Retry-After"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h := Middleware(erroringLimiter{}, IPKeyFunc, discardLogger())(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	h := Middleware(m, func(*http.Request) string { return "" }, discardLogger())(okHandler)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Zero(t, m.Len())
}

func TestCallerKeyFunc(t *testing.T) {
	a := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	a.RemoteAddr = "10.0.0.1:1000"
	a.Header.Set("Authorization", "Bearer token-a")
	b := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	b.RemoteAddr = "10.0.0.1:1001"
	b.Header.Set("Authorization", "Bearer token-b")
	anon := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	anon.RemoteAddr = "10.0.0.1:1002"

	ka, kb := CallerKeyFunc(a), CallerKeyFunc(b)
	assert.NotEqual(t, ka, kb, "callers behind one address get separate buckets")
	assert.NotContains(t, ka, "token-a")
	assert.Equal(t, ka, CallerKeyFunc(a))
	assert.Equal(t, "ip:10.0.0.1", CallerKeyFunc(anon))
}

func TestIPKeyFuncWithoutPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "unix"
	assert.Equal(t, "ip:unix", IPKeyFunc(r))
}
