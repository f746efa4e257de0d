// Package mcp implements the Model Context Protocol server for Kensa.
//
// Each tool performs one operation against Zephyr, Jira or Confluence and
// returns a JSON envelope: {"success": true, ...payload} on success, or
// {"success": false, "error": "..."} plus correlation fields on failure.
// Mutating tools pass through a write gate that denies them in read-only mode.
package mcp

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kensa/internal/ctxutil"
	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/telemetry"
)

// Options configure a Server.
type Options struct {
	Backends Backends
	// Services decides which tool sets are advertised.
	Services services.Result
	ReadOnly bool
	// ToolEnabled further filters tools by name. Nil enables all.
	ToolEnabled func(name string) bool
	// Secrets are scrubbed from every error message returned to callers.
	Secrets []string
	Logger  *slog.Logger
	Version string
}

// Server wraps the MCP server with Kensa's tool sets.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	backends     Backends
	services     services.Result
	availability map[services.Service]bool
	toolEnabled  func(string) bool
	gate         *writeGate
	redactor     *strings.Replacer
	logger       *slog.Logger
	readOnly     bool
	version      string
	tools        []string

	tracer   trace.Tracer
	calls    otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
}

// New creates and configures a new MCP server with all resources and tools.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		backends:     opts.Backends,
		services:     opts.Services,
		availability: opts.Services.Availability(),
		toolEnabled:  opts.ToolEnabled,
		gate:         newWriteGate(opts.ReadOnly, logger),
		redactor:     newRedactor(opts.Secrets),
		logger:       logger,
		readOnly:     opts.ReadOnly,
		version:      version,
		tracer:       telemetry.Tracer("kensa/mcp"),
	}
	s.initMetrics()

	// Middlewares run in registration order: instrumentation sees the gate's
	// denials and recovered panics as ordinary results.
	s.mcpServer = mcpserver.NewMCPServer(
		"kensa",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithToolHandlerMiddleware(s.instrument),
		mcpserver.WithToolHandlerMiddleware(s.gate.middleware),
		mcpserver.WithToolHandlerMiddleware(s.recoverTool),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	logger.Info("mcp: tools registered", "count", len(s.tools), "read_only", opts.ReadOnly)
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Tools returns the names of the registered tools in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// toolDef is one tool bound to the service it needs. A tool is treated as
// mutating unless its annotations explicitly claim read-only.
type toolDef struct {
	service  services.Service
	mutating bool
	tool     mcplib.Tool
	handler  mcpserver.ToolHandlerFunc
}

// addTools registers defs whose service is available and whose name is
// enabled. Every tool goes through here, so every mutating tool is known
// to the write gate before the server serves its first request.
func (s *Server) addTools(defs ...toolDef) {
	for _, d := range defs {
		if !s.availability[d.service] {
			continue
		}
		if s.toolEnabled != nil && !s.toolEnabled(d.tool.Name) {
			s.logger.Debug("mcp: tool disabled by allow-list", "tool", d.tool.Name)
			continue
		}
		if d.mutating || !declaresReadOnly(d.tool) {
			s.gate.mark(&d.tool)
		}
		s.mcpServer.AddTool(d.tool, d.handler)
		s.tools = append(s.tools, d.tool.Name)
	}
}

func declaresReadOnly(tool mcplib.Tool) bool {
	return tool.Annotations.ReadOnlyHint != nil && *tool.Annotations.ReadOnlyHint
}

func (s *Server) initMetrics() {
	meter := telemetry.Meter("kensa/mcp")
	if c, err := meter.Int64Counter("kensa.tool.calls",
		otelmetric.WithDescription("Tool invocations by tool and outcome")); err == nil {
		s.calls = c
	}
	if h, err := meter.Float64Histogram("kensa.tool.duration",
		otelmetric.WithUnit("ms")); err == nil {
		s.duration = h
	}
}

// instrument wraps every tool call in a span and records call metrics.
func (s *Server) instrument(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		name := request.Params.Name
		ctx, span := s.tracer.Start(ctx, "tool "+name,
			trace.WithAttributes(
				attribute.String("mcp.tool", name),
				attribute.String("kensa.request_id", ctxutil.RequestIDFromContext(ctx)),
			),
		)
		defer span.End()

		start := time.Now()
		res, err := next(ctx, request)
		elapsed := time.Since(start)

		outcome := outcomeOf(res, err)
		span.SetAttributes(attribute.String("mcp.outcome", outcome))
		attrs := otelmetric.WithAttributes(
			attribute.String("tool", name),
			attribute.String("outcome", outcome),
		)
		if s.calls != nil {
			s.calls.Add(ctx, 1, attrs)
		}
		if s.duration != nil {
			s.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
		}
		s.logger.Debug("mcp: tool call", "tool", name, "outcome", outcome, "duration_ms", elapsed.Milliseconds())
		return res, err
	}
}

// recoverTool turns a handler panic into an unexpected-error envelope. The
// panic value is logged, never returned to the caller.
func (s *Server) recoverTool(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (res *mcplib.CallToolResult, err error) {
		name := request.Params.Name
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("mcp: tool handler panic",
					"tool", name,
					"panic", rec,
					"request_id", ctxutil.RequestIDFromContext(ctx),
					"stack", string(debug.Stack()))
				res = envelope(fields{"success": false, "error": "Unexpected error in " + name, "tool": name})
				err = nil
			}
		}()
		return next(ctx, request)
	}
}

func outcomeOf(res *mcplib.CallToolResult, err error) string {
	switch {
	case err != nil, res == nil:
		return "error"
	case res.IsError:
		return "failure"
	default:
		return "success"
	}
}
