package swcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/swcache"
)

func TestClientHub(t *testing.T) {
	ctx := context.Background()
	hub := swcache.NewClientHub(swcache.ClientHubConfig{QueueSize: 2})

	c1 := hub.Connect(ctx, "c1", origin)
	c2 := hub.Connect(ctx, "", origin+"reports")
	assert.NotEmpty(t, c2.ID())

	// Reconnect keeps queue.
	require.NoError(t, c1.PostMessage(ctx, swcache.NewClientMessage(swcache.SyncRequest, testNow)))
	assert.Same(t, c1, hub.Connect(ctx, "c1", origin+"settings"))
	assert.Equal(t, origin+"settings", c1.URL())

	clients, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "c1", clients[0].ID())
	assert.Equal(t, c2.ID(), clients[1].ID())

	require.NoError(t, hub.Claim(ctx, "v1"))
	assert.Equal(t, "v1", c1.Controller())
	assert.Equal(t, "v1", c2.Controller())

	require.NoError(t, c1.PostMessage(ctx, swcache.NewClientMessage(swcache.SyncCompleted, testNow)))
	assert.Error(t, c1.PostMessage(ctx, swcache.NewClientMessage(swcache.SyncCompleted, testNow)), "backlog")
	assert.Equal(t, []swcache.BroadcastType{swcache.SyncRequest, swcache.SyncCompleted}, types(messages(c1)))

	hub.Disconnect(ctx, "c1")
	assert.Error(t, c1.PostMessage(ctx, swcache.NewClientMessage(swcache.SyncCompleted, testNow)))

	_, ok := hub.Get("c1")
	assert.False(t, ok)

	// Closed queue is drained.
	assert.Empty(t, messages(c1))

	// Disconnected id gets a new record.
	c3 := hub.Connect(ctx, "c1", origin)
	assert.NotSame(t, c1, c3)
}

func TestClientHub_OpenWindow(t *testing.T) {
	ctx := context.Background()
	hub := swcache.NewClientHub(swcache.ClientHubConfig{
		Opener: func(_ context.Context, url string) error {
			if url == "bad" {
				return errors.New("no browser")
			}

			return nil
		},
	})

	c, err := hub.OpenWindow(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, origin, c.URL())

	// Pending client becomes connected with the same id.
	hc := hub.Connect(ctx, c.ID(), origin+"reports")
	assert.Equal(t, c.ID(), hc.ID())

	_, err = hub.OpenWindow(ctx, "bad")
	assert.Error(t, err)

	clients, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestClientHub_Connect_concurrent(t *testing.T) {
	ctx := context.Background()
	hub := swcache.NewClientHub(swcache.ClientHubConfig{})

	const n = 50

	var wg sync.WaitGroup

	res := make([]*swcache.HubClient, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			res[i] = hub.Connect(ctx, "shared", origin)
		}(i)
	}

	wg.Wait()

	for _, c := range res {
		assert.Same(t, res[0], c)
	}

	clients, err := hub.MatchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}
