package swcache

import (
	"context"
	"net/http"
)

// Network fetches responses from remote hosts.
//
// Transport failures are returned as errors, unsuccessful statuses are returned as responses.
type Network interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// NetworkFunc implements Network.
type NetworkFunc func(ctx context.Context, req *http.Request) (*Response, error)

// Fetch performs request.
func (f NetworkFunc) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	return f(ctx, req)
}
