package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/zephyr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, env map[string]string, opts Options) *Registry {
	t.Helper()
	store := config.StoreFrom(env)
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	r := New(store, services.Resolve(store, discardLogger()), opts)
	t.Cleanup(r.Close)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rewriteTransport sends every request to target regardless of its host.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func TestUnavailableService(t *testing.T) {
	r := newRegistry(t, map[string]string{}, Options{})

	_, err := r.Jira(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = r.Zephyr(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestZephyrBuiltOnceUnderConcurrency(t *testing.T) {
	r := newRegistry(t, map[string]string{
		services.KeyZephyrAPIToken: "tok",
		services.KeyZephyrBaseURL:  "https://jira.acme.internal",
	}, Options{})

	const n = 50
	got := make([]*zephyr.Client, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.Zephyr(context.Background())
			assert.NoError(t, err)
			got[i] = c
		}()
	}
	wg.Wait()

	require.NotNil(t, got[0])
	for i := 1; i < n; i++ {
		assert.Same(t, got[0], got[i])
	}
}

func TestJiraServerPAT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/rest/api/2/issue/PROJ-1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "10001", "key": "PROJ-1",
				"fields": map[string]any{
					"summary":   "Broken login",
					"status":    map[string]any{"name": "Open"},
					"issuetype": map[string]any{"name": "Bug"},
					"project":   map[string]any{"key": "PROJ"},
				},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		}
	}))
	defer srv.Close()

	r := newRegistry(t, map[string]string{
		"JIRA_URL":            srv.URL,
		"JIRA_PERSONAL_TOKEN": "pat-123",
	}, Options{HTTPTimeout: 5 * time.Second})

	client, err := r.Jira(context.Background())
	require.NoError(t, err)

	issue, err := client.GetIssue(context.Background(), "PROJ-1", nil)
	require.NoError(t, err)
	simple := issue.Simplified()
	assert.Equal(t, "PROJ-1", simple["key"])
	assert.Equal(t, "Broken login", simple["summary"])
	assert.Equal(t, "Open", simple["status"])
	assert.Equal(t, "PROJ", simple["project_key"])

	_, err = client.GetIssue(context.Background(), "PROJ-404", nil)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus())
}

func TestConfluenceServerBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/wiki/rest/api/content/123", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "123", "type": "page", "status": "current", "title": "Runbook",
			"space":   map[string]any{"key": "OPS"},
			"version": map[string]any{"number": 4},
		})
	}))
	defer srv.Close()

	r := newRegistry(t, map[string]string{
		"CONFLUENCE_URL":       srv.URL + "/wiki",
		"CONFLUENCE_USERNAME":  "alice",
		"CONFLUENCE_API_TOKEN": "secret",
	}, Options{})

	client, err := r.Confluence(context.Background())
	require.NoError(t, err)
	page, err := client.GetPage(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "Runbook", page.Title)
	assert.Equal(t, "OPS", page.SpaceKey)
	assert.Equal(t, 4, page.Version)

	_, err = client.GetPage(context.Background(), "not-a-number")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestCallerTokenMode(t *testing.T) {
	var seen sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization")+" "+r.URL.Path, true)
		writeJSON(w, http.StatusOK, map[string]any{"id": "1", "key": "PROJ-1", "fields": map[string]any{"summary": "x"}})
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	r := newRegistry(t, map[string]string{
		services.KeyOAuthEnable:  "true",
		services.KeyOAuthCloudID: "cloud-default",
	}, Options{Transport: rewriteTransport{target: target}})

	_, err := r.Jira(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingUserToken))

	ctxA := ctxutil.WithUserToken(context.Background(), "token-a")
	ctxB := ctxutil.WithCloudID(ctxutil.WithUserToken(context.Background(), "token-b"), "cloud-b")

	a1, err := r.Jira(ctxA)
	require.NoError(t, err)
	a2, err := r.Jira(ctxA)
	require.NoError(t, err)
	b, err := r.Jira(ctxB)
	require.NoError(t, err)

	assert.Same(t, a1, a2, "same caller reuses the cached client")
	assert.NotSame(t, a1, b)
	assert.Equal(t, 2, r.perCaller.Len())

	_, err = a1.GetIssue(ctxA, "PROJ-1", nil)
	require.NoError(t, err)
	_, err = b.GetIssue(ctxB, "PROJ-1", nil)
	require.NoError(t, err)

	_, ok := seen.Load("Bearer token-a /ex/jira/cloud-default/rest/api/2/issue/PROJ-1")
	assert.True(t, ok)
	_, ok = seen.Load("Bearer token-b /ex/jira/cloud-b/rest/api/2/issue/PROJ-1")
	assert.True(t, ok)
}

func TestCallerTokenModeNeedsCloudID(t *testing.T) {
	r := newRegistry(t, map[string]string{services.KeyOAuthEnable: "1"}, Options{})
	_, err := r.Confluence(ctxutil.WithUserToken(context.Background(), "tok"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCloudID))
}

func TestOAuthClientCredentialsRefresh(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			refreshes.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "minted", "token_type": "Bearer", "expires_in": 3600,
			})
		case "/ex/jira/cloud-123/rest/api/2/issue/PROJ-1":
			assert.Equal(t, "Bearer minted", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"id": "1", "key": "PROJ-1", "fields": map[string]any{"summary": "x"}})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	r := newRegistry(t, map[string]string{
		"JIRA_URL":                    "https://acme.atlassian.net",
		services.KeyOAuthClientID:     "client",
		services.KeyOAuthClientSecret: "secret",
		services.KeyOAuthRedirectURI:  "http://localhost/callback",
		services.KeyOAuthScope:        "read:jira-work offline_access",
		services.KeyOAuthCloudID:      "cloud-123",
		services.KeyOAuthRefreshToken: "refresh-1",
	}, Options{Transport: rewriteTransport{target: target}})

	client, err := r.Jira(context.Background())
	require.NoError(t, err)
	for range 3 {
		_, err = client.GetIssue(context.Background(), "PROJ-1", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshes.Load(), "token is reused until expiry")
}

func TestOAuthClientCredentialsRefreshesStartupToken(t *testing.T) {
	var refreshes atomic.Int32
	var rejected atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			refreshes.Add(1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "minted", "token_type": "Bearer", "expires_in": 3600,
			})
		case "/ex/jira/cloud-123/rest/api/2/issue/PROJ-1":
			if r.Header.Get("Authorization") != "Bearer minted" {
				rejected.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": "1", "key": "PROJ-1", "fields": map[string]any{"summary": "x"}})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	r := newRegistry(t, map[string]string{
		"JIRA_URL":                    "https://acme.atlassian.net",
		services.KeyOAuthClientID:     "client",
		services.KeyOAuthClientSecret: "secret",
		services.KeyOAuthRedirectURI:  "http://localhost/callback",
		services.KeyOAuthScope:        "read:jira-work offline_access",
		services.KeyOAuthCloudID:      "cloud-123",
		services.KeyOAuthAccessToken:  "expired-at-startup",
		services.KeyOAuthRefreshToken: "refresh-1",
	}, Options{Transport: rewriteTransport{target: target}})

	client, err := r.Jira(context.Background())
	require.NoError(t, err)
	for range 3 {
		_, err = client.GetIssue(context.Background(), "PROJ-1", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Zero(t, rejected.Load(), "the startup access token is never sent")
}

func TestOAuthClientCredentialsAccessTokenOnly(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "1", "key": "PROJ-1", "fields": map[string]any{"summary": "x"}})
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	r := newRegistry(t, map[string]string{
		"JIRA_URL":                    "https://acme.atlassian.net",
		services.KeyOAuthClientID:     "client",
		services.KeyOAuthClientSecret: "secret",
		services.KeyOAuthRedirectURI:  "http://localhost/callback",
		services.KeyOAuthScope:        "read:jira-work",
		services.KeyOAuthCloudID:      "cloud-123",
		services.KeyOAuthAccessToken:  "static",
	}, Options{Transport: rewriteTransport{target: target}})

	client, err := r.Jira(context.Background())
	require.NoError(t, err)
	_, err = client.GetIssue(context.Background(), "PROJ-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer static", auth.Load())
}

func TestOAuthClientCredentialsWithoutTokens(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"JIRA_URL":                    "https://acme.atlassian.net",
		services.KeyOAuthClientID:     "client",
		services.KeyOAuthClientSecret: "secret",
		services.KeyOAuthRedirectURI:  "http://localhost/callback",
		services.KeyOAuthScope:        "read:jira-work",
		services.KeyOAuthCloudID:      "cloud-123",
	}, Options{})

	_, err := r.Jira(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), services.KeyOAuthRefreshToken)

	_, err = r.Jira(context.Background())
	require.Error(t, err, "failed builds are retried, not cached")
}

func TestRetriesAreOptIn(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": "JQA-T1", "name": "ok"})
	}))
	defer srv.Close()
	env := map[string]string{services.KeyZephyrAPIToken: "tok", services.KeyZephyrBaseURL: srv.URL}

	noRetry := newRegistry(t, env, Options{})
	zc, err := noRetry.Zephyr(context.Background())
	require.NoError(t, err)
	_, err = zc.GetTestCase(context.Background(), "JQA-T1", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	withRetry := newRegistry(t, env, Options{MaxRetries: 2})
	zc, err = withRetry.Zephyr(context.Background())
	require.NoError(t, err)
	tc, err := zc.GetTestCase(context.Background(), "JQA-T1", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", tc.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistryContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	r := newRegistry(t, map[string]string{}, Options{})
	got, ok := FromContext(NewContext(context.Background(), r))
	require.True(t, ok)
	assert.Same(t, r, got)
}

func TestCacheKeyHidesToken(t *testing.T) {
	k := cacheKey("jira", "super-secret-token", "cloud")
	assert.Len(t, k, 64)
	assert.NotContains(t, k, "super-secret-token")
	assert.NotEqual(t, k, cacheKey("confluence", "super-secret-token", "cloud"))
}

func TestClientCacheExpiry(t *testing.T) {
	c := newClientCache(10 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.evictExpired()
	assert.Equal(t, 0, c.Len())
	c.Close()
}
