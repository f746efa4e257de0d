package registry

import "context"

type contextKey struct{}

// NewContext returns a new context carrying r.
func NewContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext extracts the registry injected by the transport layer.
func FromContext(ctx context.Context) (*Registry, bool) {
	r, ok := ctx.Value(contextKey{}).(*Registry)
	return r, ok && r != nil
}
