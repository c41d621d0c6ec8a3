package swcache_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearutop/swcache"
)

func TestRegistration_Register(t *testing.T) {
	ctx := context.Background()
	nw := newNetwork()
	nw.set(origin+"index.html", http.StatusOK, "index v1")

	st := swcache.NewMemoryStorage()
	r := swcache.NewRegistration(nil)

	// Without active gatekeeper requests pass through.
	fe := &swcache.FetchEvent{Request: navigation(origin)}
	require.NoError(t, r.Dispatch(ctx, fe))

	_, ok := fe.Response()
	assert.False(t, ok)

	var reply swcache.Reply

	require.NoError(t, r.Dispatch(ctx, swcache.MessageEvent{
		Message: swcache.Message{Type: swcache.GetCacheNames},
		Port:    swcache.ReplyFunc(func(rp swcache.Reply) { reply = rp }),
	}))
	assert.Equal(t, swcache.Reply{Error: "no active gatekeeper"}, reply)

	g1 := newGatekeeper(t, swcache.Config{Version: testVersion("v1", "/index.html"), Storage: st, Network: nw})
	require.NoError(t, r.Register(ctx, g1))
	assert.Same(t, g1, r.Active())
	assert.Equal(t, swcache.StateActivated, g1.State())

	// Broken version keeps previous one in charge.
	g2 := newGatekeeper(t, swcache.Config{Version: testVersion("v2", "/index.html", "/missing.css"), Storage: st, Network: nw})
	require.Error(t, r.Register(ctx, g2))
	assert.Same(t, g1, r.Active())
	assert.Nil(t, r.Waiting())
	assert.Equal(t, swcache.StateRedundant, g2.State())

	names, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)

	nw.setOffline(true)

	fe = &swcache.FetchEvent{Request: navigation(origin + "index.html")}
	require.NoError(t, r.Dispatch(ctx, fe))
	g1.Wait()

	resp, ok := fe.Response()
	require.True(t, ok)
	assert.Equal(t, "index v1", string(resp.Body))

	assert.Error(t, r.Dispatch(ctx, swcache.InstallEvent{}))
}

func TestRegistration_Register_manualActivation(t *testing.T) {
	ctx := context.Background()
	nw := newNetwork()
	nw.set(origin+"index.html", http.StatusOK, "index v1")

	st := swcache.NewMemoryStorage()
	r := swcache.NewRegistration(nil)

	g1 := newGatekeeper(t, swcache.Config{Version: testVersion("v1", "/index.html"), Storage: st, Network: nw})
	require.NoError(t, r.Register(ctx, g1))

	nw.set(origin+"index.html", http.StatusOK, "index v2")

	g2 := newGatekeeper(t, swcache.Config{
		Version:          testVersion("v2", "/index.html"),
		Storage:          st,
		Network:          nw,
		ManualActivation: true,
	})
	require.NoError(t, r.Register(ctx, g2))

	assert.Same(t, g1, r.Active())
	assert.Same(t, g2, r.Waiting())
	assert.Equal(t, swcache.StateInstalled, g2.State())

	names, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)

	var reply swcache.Reply

	require.NoError(t, r.Dispatch(ctx, swcache.MessageEvent{
		Message: swcache.Message{Type: swcache.SkipWaiting},
		Port:    swcache.ReplyFunc(func(rp swcache.Reply) { reply = rp }),
	}))
	assert.True(t, reply.Success)

	assert.Same(t, g2, r.Active())
	assert.Nil(t, r.Waiting())
	assert.Equal(t, swcache.StateRedundant, g1.State())
	assert.Equal(t, swcache.StateActivated, g2.State())

	names, err = st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	// Nothing is waiting.
	require.NoError(t, r.SkipWaiting(ctx))
	assert.Same(t, g2, r.Active())
}

func TestRegistration_Register_refreshInFlight(t *testing.T) {
	ctx := context.Background()
	nw := newNetwork()
	nw.set(origin+"index.html", http.StatusOK, "index v1")

	var blocking atomic.Bool

	started := make(chan struct{}, 1)
	release := make(chan struct{})

	slow := swcache.NetworkFunc(func(ctx context.Context, req *http.Request) (*swcache.Response, error) {
		if blocking.Load() {
			started <- struct{}{}
			<-release
		}

		return nw.Fetch(ctx, req)
	})

	st := swcache.NewMemoryStorage()
	r := swcache.NewRegistration(nil)

	g1 := newGatekeeper(t, swcache.Config{Version: testVersion("v1", "/index.html"), Storage: st, Network: slow})
	require.NoError(t, r.Register(ctx, g1))

	blocking.Store(true)

	resp, _, err := g1.Fetch(ctx, navigation(origin+"index.html"))
	require.NoError(t, err)
	assert.Equal(t, "index v1", string(resp.Body))

	<-started
	blocking.Store(false)

	g2 := newGatekeeper(t, swcache.Config{Version: testVersion("v2", "/index.html"), Storage: st, Network: nw})
	require.NoError(t, r.Register(ctx, g2))

	names, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	close(release)
	g1.Wait()

	names, err = st.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names, "finished refresh of previous version does not bring its generation back")
}

func TestRegistration_Register_storedGeneration(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		version string
	}{
		{name: "same version", version: "v1"},
		{name: "new version", version: "v2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := swcache.NewMemoryStorage()

			_, err := st.Open(ctx, "v0")
			require.NoError(t, err)

			c, err := st.Open(ctx, "v1")
			require.NoError(t, err)
			require.NoError(t, c.Put(ctx, "GET "+origin+"index.html", &swcache.Response{
				Status: http.StatusOK,
				Body:   []byte("stored index"),
				Type:   swcache.TypeBasic,
			}))

			r := swcache.NewRegistration(nil)
			g := newGatekeeper(t, swcache.Config{
				Version: testVersion(tc.version, "/index.html"),
				Storage: st,
				Network: swcache.Offline{},
			})

			require.Error(t, r.Register(ctx, g))
			assert.Equal(t, swcache.StateRedundant, g.State())

			active := r.Active()
			require.NotNil(t, active)
			assert.Equal(t, "v1", active.Name())
			assert.Equal(t, swcache.StateActivated, active.State())

			fe := &swcache.FetchEvent{Request: navigation(origin + "index.html")}
			require.NoError(t, r.Dispatch(ctx, fe))
			active.Wait()

			resp, ok := fe.Response()
			require.True(t, ok)
			assert.Equal(t, "stored index", string(resp.Body))

			names, err := st.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"v1"}, names)
		})
	}
}

func TestRegistration_Register_emptyStorage(t *testing.T) {
	ctx := context.Background()
	st := swcache.NewMemoryStorage()

	_, err := st.Open(ctx, "v0")
	require.NoError(t, err)

	r := swcache.NewRegistration(nil)
	g := newGatekeeper(t, swcache.Config{
		Version: testVersion("v1", "/index.html"),
		Storage: st,
		Network: swcache.Offline{},
	})

	require.Error(t, r.Register(ctx, g))
	assert.Nil(t, r.Active())
	assert.Nil(t, r.Waiting())
}

type undeletableStorage struct {
	swcache.Storage
}

func (undeletableStorage) Delete(_ context.Context, _ string) (bool, error) {
	return false, errors.New("database is locked")
}

func TestRegistration_Register_activationFailure(t *testing.T) {
	ctx := context.Background()
	nw := newNetwork()
	nw.set(origin+"index.html", http.StatusOK, "index v1")

	st := undeletableStorage{Storage: swcache.NewMemoryStorage()}
	r := swcache.NewRegistration(nil)

	g1 := newGatekeeper(t, swcache.Config{Version: testVersion("v1", "/index.html"), Storage: st, Network: nw})
	require.NoError(t, r.Register(ctx, g1))

	g2 := newGatekeeper(t, swcache.Config{Version: testVersion("v2", "/index.html"), Storage: st, Network: nw})
	err := r.Register(ctx, g2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	assert.Same(t, g1, r.Active())
	assert.Nil(t, r.Waiting())
	assert.Equal(t, swcache.StateActivated, g1.State())
	assert.Equal(t, swcache.StateRedundant, g2.State())

	nw.setOffline(true)

	fe := &swcache.FetchEvent{Request: subresource(http.MethodGet, origin+"index.html")}
	require.NoError(t, r.Dispatch(ctx, fe))

	resp, ok := fe.Response()
	require.True(t, ok)
	assert.Equal(t, "index v1", string(resp.Body))
}
