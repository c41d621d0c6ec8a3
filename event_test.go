package swcache_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bool64/ctxd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/swcache"
)

func TestGatekeeper_Handle(t *testing.T) {
	ctx := context.Background()
	nw := newNetwork()
	nw.set(origin+"index.html", http.StatusOK, "index")

	hub := swcache.NewClientHub(swcache.ClientHubConfig{})
	client := hub.Connect(ctx, "c1", origin)

	g := newGatekeeper(t, swcache.Config{
		Version: testVersion("v1", "/index.html"),
		Network: nw,
		Clients: hub,
	})

	require.NoError(t, g.Handle(ctx, swcache.InstallEvent{}))
	require.NoError(t, g.Handle(ctx, swcache.ActivateEvent{}))
	assert.Equal(t, swcache.StateActivated, g.State())
	assert.Equal(t, []swcache.BroadcastType{swcache.Activated}, types(messages(client)))

	fe := &swcache.FetchEvent{Request: subresource(http.MethodGet, origin+"index.html")}
	require.NoError(t, g.Handle(ctx, fe))

	resp, ok := fe.Response()
	require.True(t, ok)
	assert.Equal(t, "index", string(resp.Body))

	fe = &swcache.FetchEvent{Request: subresource(http.MethodPost, origin+"api")}
	require.NoError(t, g.Handle(ctx, fe))

	_, ok = fe.Response()
	assert.False(t, ok, "pass through")

	var reply swcache.Reply

	require.NoError(t, g.Handle(ctx, swcache.MessageEvent{
		Message: swcache.Message{Type: swcache.GetCacheNames},
		Source:  "c1",
		Port: swcache.ReplyFunc(func(r swcache.Reply) {
			reply = r
		}),
	}))
	assert.Equal(t, []string{"v1"}, reply.CacheNames)
}

func TestGatekeeper_Handle_offlineSubresource(t *testing.T) {
	g := newGatekeeper(t, swcache.Config{Version: testVersion("v1")})

	fe := &swcache.FetchEvent{Request: subresource(http.MethodGet, origin+"app.js")}
	err := g.Handle(context.Background(), fe)

	assert.ErrorIs(t, err, swcache.ErrNoResponse)

	_, ok := fe.Response()
	assert.False(t, ok)
}

func TestDispatcher_Dispatch_panic(t *testing.T) {
	logger := &ctxd.LoggerMock{}
	g := newGatekeeper(t, swcache.Config{Version: testVersion("v1"), Logger: logger})

	d := swcache.NewDispatcher(g)
	d.Handle(swcache.KindPush, func(_ context.Context, _ swcache.Event) error {
		panic("malformed payload")
	})

	err := d.Dispatch(context.Background(), swcache.PushEvent{Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed payload")
	assert.Contains(t, logger.String(), "uncaught error")
}

func TestDispatcher_Dispatch_rejection(t *testing.T) {
	logger := &ctxd.LoggerMock{}
	g := newGatekeeper(t, swcache.Config{Version: testVersion("v1"), Logger: logger})

	err := g.Handle(context.Background(), swcache.RejectionEvent{Reason: errors.New("refresh failed")})
	require.NoError(t, err)
	assert.Contains(t, logger.String(), "unhandled rejection")
	assert.Contains(t, logger.String(), "refresh failed")
}

type unknownEvent struct{}

func (unknownEvent) Kind() swcache.Kind { return "backgroundfetch" }

func TestDispatcher_Dispatch_unsupported(t *testing.T) {
	g := newGatekeeper(t, swcache.Config{Version: testVersion("v1")})

	assert.EqualError(t, g.Handle(context.Background(), unknownEvent{}), "unsupported event: backgroundfetch")
}
