package swcache

import (
	"context"
)

type (
	reloadCtxKey   struct{}
	clientIDCtxKey struct{}
)

// WithReload returns context that requests network fetch bypassing intermediate HTTP caches.
//
// Network implementations should force revalidation (e.g. Cache-Control: no-cache) for such context.
func WithReload(ctx context.Context) context.Context {
	return context.WithValue(ctx, reloadCtxKey{}, true)
}

// Reload returns true if intermediate caches must be bypassed.
func Reload(ctx context.Context) bool {
	_, ok := ctx.Value(reloadCtxKey{}).(bool)
	return ok
}

// WithClientID returns context with identifier of the client context that originated the event.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDCtxKey{}, id)
}

// ClientID returns originating client identifier or empty string.
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDCtxKey{}).(string)
	return id
}
