// Package ctxutil provides shared context key accessors.
//
// This package exists to break the circular dependency between server, mcp
// and registry: server populates request-scoped values from HTTP headers,
// while mcp and registry read them when a tool runs. All three import ctxutil
// instead of each other.
package ctxutil

import "context"

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyUserToken contextKey = "user_token"
	keyCloudID   contextKey = "cloud_id"
)

// WithRequestID returns a new context carrying the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestIDFromContext extracts the request id from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithUserToken returns a new context carrying a caller-supplied bearer token.
// Blank tokens are not stored.
func WithUserToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, keyUserToken, token)
}

// UserTokenFromContext extracts the caller's bearer token from the context.
func UserTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserToken).(string)
	return v, ok && v != ""
}

// WithCloudID returns a new context carrying a caller-supplied Atlassian cloud id.
func WithCloudID(ctx context.Context, cloudID string) context.Context {
	if cloudID == "" {
		return ctx
	}
	return context.WithValue(ctx, keyCloudID, cloudID)
}

// CloudIDFromContext extracts the caller's cloud id from the context.
func CloudIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(keyCloudID).(string); ok {
		return v
	}
	return ""
}
