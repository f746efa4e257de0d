// Package server hosts the MCP endpoint over streamable HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/ratelimit"
	"github.com/ashita-ai/kensa/internal/registry"
	"github.com/ashita-ai/kensa/internal/services"
)

// HeaderCloudID lets a caller in forwarded-token mode pick the Atlassian site.
const HeaderCloudID = "X-Atlassian-Cloud-Id"

// Server is the Kensa HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the dependencies and settings for creating a Server.
// Registry and Limiter may be nil.
type Config struct {
	MCPServer *mcpserver.MCPServer
	Registry  *registry.Registry
	Limiter   ratelimit.Limiter

	// Reported by /health.
	Services services.Result
	ReadOnly bool
	Tools    func() []string
	Version  string

	Logger       *slog.Logger
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}

	mux := http.NewServeMux()

	// Streamable HTTP is stateless: credentials travel with every request,
	// so there is no session state worth pinning a client to.
	mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(mcpContext(cfg.Registry)),
	)
	rateLimited := ratelimit.Middleware(limiter, ratelimit.CallerKeyFunc, logger)
	mux.Handle("/mcp", rateLimited(mcpHTTP))

	// Health (no rate limit).
	started := time.Now()
	mux.HandleFunc("GET /health", healthHandler(cfg, started))

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	metrics := newHTTPMetrics()
	var handler http.Handler = mux
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = metrics.tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// mcpContext copies per-request credentials from headers into the context the
// tool handlers see, and attaches the registry that resolves them.
func mcpContext(reg *registry.Registry) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		if tok, ok := bearerToken(r); ok {
			ctx = ctxutil.WithUserToken(ctx, tok)
		}
		if id := strings.TrimSpace(r.Header.Get(HeaderCloudID)); id != "" {
			ctx = ctxutil.WithCloudID(ctx, id)
		}
		if reg != nil {
			ctx = registry.NewContext(ctx, reg)
		}
		return ctx
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}
