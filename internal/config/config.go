// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport names accepted by KENSA_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Transport    string // "stdio" or "http"
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Tool surface.
	ReadOnly     bool     // READ_ONLY_MODE; mutating tools are refused when set.
	EnabledTools []string // Optional allow-list of tool names. Empty means all.

	// Backend HTTP settings.
	HTTPTimeout    time.Duration
	HTTPMaxRetries int           // 0 disables transport retries.
	ClientCacheTTL time.Duration // Lifetime of per-caller clients built from forwarded tokens.

	// Rate limiting for the HTTP transport. RPS <= 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string

	// Store is the snapshot of the environment that credential resolution reads.
	Store Store
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	port, err := envInt("KENSA_PORT", 8080)
	collect(err)
	readTimeout, err := envDuration("KENSA_READ_TIMEOUT", 30*time.Second)
	collect(err)
	writeTimeout, err := envDuration("KENSA_WRITE_TIMEOUT", 30*time.Second)
	collect(err)
	httpTimeout, err := envDuration("KENSA_HTTP_TIMEOUT", 30*time.Second)
	collect(err)
	maxRetries, err := envInt("KENSA_HTTP_MAX_RETRIES", 0)
	collect(err)
	cacheTTL, err := envDuration("KENSA_CLIENT_CACHE_TTL", 10*time.Minute)
	collect(err)
	rps, err := envFloat("KENSA_RATE_LIMIT_RPS", 0)
	collect(err)
	burst, err := envInt("KENSA_RATE_LIMIT_BURST", 20)
	collect(err)
	otelInsecure, err := envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	store := FromEnviron(os.Environ())
	cfg := Config{
		Transport:      strings.ToLower(envStr("KENSA_TRANSPORT", TransportStdio)),
		Port:           port,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		ReadOnly:       store.Truthy("READ_ONLY_MODE"),
		EnabledTools:   splitList(envStr("KENSA_ENABLED_TOOLS", "")),
		HTTPTimeout:    httpTimeout,
		HTTPMaxRetries: maxRetries,
		ClientCacheTTL: cacheTTL,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:   otelInsecure,
		ServiceName:    envStr("OTEL_SERVICE_NAME", "kensa"),
		LogLevel:       envStr("KENSA_LOG_LEVEL", "info"),
		Store:          store,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that operational settings are coherent.
func (c Config) Validate() error {
	if c.Transport != TransportStdio && c.Transport != TransportHTTP {
		return fmt.Errorf("config: KENSA_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}
	if c.Transport == TransportHTTP && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("config: KENSA_PORT must be between 1 and 65535")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: KENSA_HTTP_TIMEOUT must be positive")
	}
	if c.HTTPMaxRetries < 0 {
		return fmt.Errorf("config: KENSA_HTTP_MAX_RETRIES must not be negative")
	}
	if c.ClientCacheTTL <= 0 {
		return fmt.Errorf("config: KENSA_CLIENT_CACHE_TTL must be positive")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: KENSA_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	return nil
}

// ToolEnabled reports whether the named tool passes the KENSA_ENABLED_TOOLS filter.
func (c Config) ToolEnabled(name string) bool {
	if len(c.EnabledTools) == 0 {
		return true
	}
	for _, t := range c.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
