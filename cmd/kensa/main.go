// Command kensa serves Zephyr, Jira and Confluence tools over the Model
// Context Protocol, on stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kensa/internal/config"
	"github.com/ashita-ai/kensa/internal/mcp"
	"github.com/ashita-ai/kensa/internal/ratelimit"
	"github.com/ashita-ai/kensa/internal/registry"
	"github.com/ashita-ai/kensa/internal/server"
	"github.com/ashita-ai/kensa/internal/services"
	"github.com/ashita-ai/kensa/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	// Loaded before the logger so KENSA_LOG_LEVEL can come from it.
	_ = godotenv.Load()

	// stdout carries the stdio transport; logs go to stderr.
	logger := newLogger(os.Stderr, os.Getenv("KENSA_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(levelName))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("kensa starting",
		"version", version,
		"transport", cfg.Transport,
		"read_only", cfg.ReadOnly)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Transport:   cfg.Transport,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	resolved := services.Resolve(cfg.Store, logger)
	reg := registry.New(cfg.Store, resolved, registry.Options{
		HTTPTimeout: cfg.HTTPTimeout,
		MaxRetries:  cfg.HTTPMaxRetries,
		UserAgent:   "kensa/" + version,
		CacheTTL:    cfg.ClientCacheTTL,
		Logger:      logger,
	})
	defer reg.Close()

	mcpSrv := mcp.New(mcp.Options{
		Backends:    mcp.RegistryBackends(reg),
		Services:    resolved,
		ReadOnly:    cfg.ReadOnly,
		ToolEnabled: cfg.ToolEnabled,
		Secrets:     services.SecretValues(cfg.Store),
		Logger:      logger,
		Version:     version,
	})
	if len(mcpSrv.Tools()) == 0 {
		logger.Warn("no backend is configured; the server exposes no tools")
	}

	switch cfg.Transport {
	case config.TransportHTTP:
		return serveHTTP(ctx, cfg, mcpSrv, reg, resolved, logger)
	default:
		return serveStdio(ctx, mcpSrv, reg, logger)
	}
}

func serveStdio(ctx context.Context, mcpSrv *mcp.Server, reg *registry.Registry, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv.MCPServer())
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return registry.NewContext(ctx, reg)
	})

	logger.Info("serving MCP on stdio")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio: %w", err)
	}
	logger.Info("kensa shutting down")
	return nil
}

func serveHTTP(ctx context.Context, cfg config.Config, mcpSrv *mcp.Server, reg *registry.Registry, resolved services.Result, logger *slog.Logger) error {
	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer func() { _ = limiter.Close() }()

	srv := server.New(server.Config{
		MCPServer:    mcpSrv.MCPServer(),
		Registry:     reg,
		Limiter:      limiter,
		Services:     resolved,
		ReadOnly:     cfg.ReadOnly,
		Tools:        mcpSrv.Tools,
		Version:      version,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("kensa shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	return nil
}
