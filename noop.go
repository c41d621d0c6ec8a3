package swcache

import (
	"context"
	"net/http"
)

var (
	_ Network  = Offline{}
	_ Clients  = NoOpClients{}
	_ Notifier = NoOpNotifier{}
)

// Offline is a Network stub that always fails.
type Offline struct{}

// Fetch fails with ErrNoNetwork.
func (Offline) Fetch(_ context.Context, _ *http.Request) (*Response, error) {
	return nil, ErrNoNetwork
}

// NoOpClients has no client contexts.
type NoOpClients struct{}

// MatchAll returns no clients.
func (NoOpClients) MatchAll(_ context.Context) ([]Client, error) {
	return nil, nil
}

// Claim does nothing.
func (NoOpClients) Claim(_ context.Context, _ string) error {
	return nil
}

// OpenWindow discards request.
func (NoOpClients) OpenWindow(_ context.Context, _ string) (Client, error) {
	return nil, nil
}

// NoOpNotifier discards notifications.
type NoOpNotifier struct{}

// ShowNotification does nothing.
func (NoOpNotifier) ShowNotification(_ context.Context, _ Notification) error {
	return nil
}
