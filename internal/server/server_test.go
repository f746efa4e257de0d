package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/mcp"
	"github.com/ashita-ai/kensa/internal/ratelimit"
	"github.com/ashita-ai/kensa/internal/registry"
	"github.com/ashita-ai/kensa/internal/services"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

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

// backend stands in for Jira and Zephyr and records what it was sent.
type backend struct {
	mu    sync.Mutex
	auth  []string
	paths []string
	srv   *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.paths = append(b.paths, r.URL.Path)
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/rest/atm/1.0/testcase/JQA-T1":
			_, _ = w.Write([]byte(`{"key":"JQA-T1","name":"Login works","status":"Approved"}`))
		case r.Method == http.MethodGet && bytes.HasSuffix([]byte(r.URL.Path), []byte("/rest/api/2/issue/PROJ-1")):
			_, _ = w.Write([]byte(`{"id":"10001","key":"PROJ-1","fields":{"summary":"Broken login"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errorMessages":["not found"]}`))
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) seen() ([]string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...), append([]string(nil), b.paths...)
}

type fixture struct {
	server  *Server
	backend *backend
}

func newFixture(t *testing.T, env map[string]string, readOnly bool, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	b := newBackend(t)
	target, err := url.Parse(b.srv.URL)
	require.NoError(t, err)

	if env == nil {
		env = map[string]string{
			services.KeyZephyrAPIToken: "zephyr-secret",
			services.KeyZephyrBaseURL:  b.srv.URL,
		}
	}
	store := config.StoreFrom(env)
	resolved := services.Resolve(store, discardLogger())
	reg := registry.New(store, resolved, registry.Options{
		Logger:    discardLogger(),
		Transport: rewriteTransport{target: target},
	})
	t.Cleanup(reg.Close)

	m := mcp.New(mcp.Options{
		Backends: mcp.RegistryBackends(reg),
		Services: resolved,
		ReadOnly: readOnly,
		Secrets:  services.SecretValues(store),
		Logger:   discardLogger(),
		Version:  "test",
	})
	srv := New(Config{
		MCPServer: m.MCPServer(),
		Registry:  reg,
		Limiter:   limiter,
		Services:  resolved,
		ReadOnly:  readOnly,
		Tools:     m.Tools,
		Version:   "test",
		Logger:    discardLogger(),
	})
	return &fixture{server: srv, backend: b}
}

func (f *fixture) callTool(t *testing.T, name string, args map[string]any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		return rec, nil
	}

	var rpc struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rpc), rec.Body.String())
	require.Len(t, rpc.Result.Content, 1)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal([]byte(rpc.Result.Content[0].Text), &envelope))
	return rec, envelope
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.ReadOnly)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, map[services.Service]bool{services.Jira: false, services.Confluence: false, services.Zephyr: true}, body.Services)
	assert.Equal(t, "configured", body.ZephyrState)
	assert.Positive(t, body.Tools)
}

func TestHealthDegradedWithoutServices(t *testing.T) {
	f := newFixture(t, map[string]string{}, false, nil)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Zero(t, body.Tools)
}

func TestToolCallOverHTTP(t *testing.T) {
	f := newFixture(t, nil, false, nil)

	rec, env := f.callTool(t, "zephyr_get_testcase", map[string]any{"test_case_key": "JQA-T1"}, map[string]string{
		"X-Request-ID": "req-abc",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "JQA-T1", env["test_case"].(map[string]any)["key"])

	auth, _ := f.backend.seen()
	require.Len(t, auth, 1)
	assert.Equal(t, "Bearer zephyr-secret", auth[0])
}

func TestReadOnlyOverHTTP(t *testing.T) {
	f := newFixture(t, nil, true, nil)

	_, env := f.callTool(t, "zephyr_delete_testcase", map[string]any{"test_case_key": "JQA-T1"}, nil)
	assert.Equal(t, false, env["success"])
	assert.Contains(t, env["error"], "read-only")

	auth, _ := f.backend.seen()
	assert.Empty(t, auth, "denied writes never reach the backend")
}

func TestForwardedTokenReachesJira(t *testing.T) {
	f := newFixture(t, map[string]string{
		services.KeyOAuthEnable:  "true",
		services.KeyOAuthCloudID: "cloud-default",
	}, false, nil)

	_, env := f.callTool(t, "jira_get_issue", map[string]any{"issue_key": "PROJ-1"}, nil)
	assert.Equal(t, false, env["success"])
	assert.Contains(t, env["error"], "Authentication/Permission Error")

	_, env = f.callTool(t, "jira_get_issue", map[string]any{"issue_key": "PROJ-1"}, map[string]string{
		"Authorization": "Bearer user-token-1",
		HeaderCloudID:   "cloud-b",
	})
	require.Equal(t, true, env["success"], env)
	assert.Equal(t, "Broken login", env["issue"].(map[string]any)["summary"])

	auth, paths := f.backend.seen()
	require.Len(t, auth, 1)
	assert.Equal(t, "Bearer user-token-1", auth[0])
	assert.Equal(t, "/ex/jira/cloud-b/rest/api/2/issue/PROJ-1", paths[0])
}

func TestRateLimitAppliesToMCPOnly(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Options{Rate: 0.001, Burst: 1})
	t.Cleanup(func() { _ = limiter.Close() })
	f := newFixture(t, nil, false, limiter)

	rec, _ := f.callTool(t, "zephyr_get_testcase", map[string]any{"test_case_key": "JQA-T1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.callTool(t, "zephyr_get_testcase", map[string]any{"test_case_key": "JQA-T1"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	for i := 0; i < 3; i++ {
		h := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		f.server.Handler().ServeHTTP(h, req)
		assert.Equal(t, http.StatusOK, h.Code)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
