package swcache_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vearutop/swcache"
)

const origin = "http://app.test/"

var (
	errOffline = errors.New("dial tcp: connection refused")
	testNow    = time.Unix(1700000000, 0)
)

// network is a scripted swcache.Network.
type network struct {
	mu        sync.Mutex
	responses map[string]*swcache.Response
	offline   bool
	calls     []string
	reloads   int
}

func newNetwork() *network {
	return &network{responses: map[string]*swcache.Response{}}
}

func (n *network) set(url string, status int, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.responses[url] = &swcache.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte(body),
		Type:   swcache.TypeBasic,
		URL:    url,
	}
}

func (n *network) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.offline = offline
}

func (n *network) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.calls...)
}

func (n *network) Fetch(ctx context.Context, req *http.Request) (*swcache.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, req.URL.String())

	if swcache.Reload(ctx) {
		n.reloads++
	}

	if n.offline {
		return nil, errOffline
	}

	resp, ok := n.responses[req.URL.String()]
	if !ok {
		return &swcache.Response{Status: http.StatusNotFound, Type: swcache.TypeBasic, URL: req.URL.String()}, nil
	}

	return resp.Clone(), nil
}

func testVersion(name string, manifest ...string) swcache.Version {
	v := swcache.DefaultVersion()
	v.Name = name
	v.Origin = origin
	v.Manifest = manifest

	return v
}

func newGatekeeper(t *testing.T, cfg swcache.Config) *swcache.Gatekeeper {
	t.Helper()

	if cfg.Storage == nil {
		cfg.Storage = swcache.NewMemoryStorage()
	}

	g, err := swcache.New(cfg)
	require.NoError(t, err)

	return g
}

func navigation(url string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	return req
}

func subresource(method, url string) *http.Request {
	req, _ := http.NewRequest(method, url, nil)
	req.Header.Set("Sec-Fetch-Dest", "script")

	return req
}

// messages drains queued client messages.
func messages(c *swcache.HubClient) []swcache.ClientMessage {
	var res []swcache.ClientMessage

	for {
		select {
		case m, ok := <-c.Messages():
			if !ok {
				return res
			}

			res = append(res, m)
		default:
			return res
		}
	}
}

func types(msgs []swcache.ClientMessage) []swcache.BroadcastType {
	res := make([]swcache.BroadcastType, 0, len(msgs))

	for _, m := range msgs {
		res = append(res, m.Type)
	}

	return res
}
