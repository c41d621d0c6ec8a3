package swcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync"
)

// Client is an open instance of the application.
type Client interface {
	ID() string
	URL() string
	PostMessage(ctx context.Context, msg ClientMessage) error
	Focus(ctx context.Context) error
}

// Clients gives access to open client contexts.
type Clients interface {
	// MatchAll returns currently open clients.
	MatchAll(ctx context.Context) ([]Client, error)

	// Claim makes gatekeeper with a given generation a controller of all open clients.
	Claim(ctx context.Context, controller string) error

	// OpenWindow opens a new client context at address.
	OpenWindow(ctx context.Context, url string) (Client, error)
}

var (
	errClientGone    = errors.New("client is disconnected")
	errClientBacklog = errors.New("client message queue is full")
)

var (
	_ Clients = &ClientHub{}
	_ Client  = &HubClient{}
)

// ClientHubConfig controls ClientHub instance.
type ClientHubConfig struct {
	// Logger collects messages with context.
	Logger ctxd.Logger

	// QueueSize is a number of undelivered messages kept per client, default 32.
	QueueSize int

	// Opener is called when a new client context is requested, e.g. to launch a browser.
	Opener func(ctx context.Context, url string) error
}

// ClientHub is an in-memory registry of client contexts connected to a host adapter.
type ClientHub struct {
	clients *xsync.Map
	seq     uint64
	config  ClientHubConfig
	log     ctxd.Logger
}

// NewClientHub creates client registry.
func NewClientHub(cfg ClientHubConfig) *ClientHub {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 32
	}

	h := &ClientHub{
		clients: xsync.NewMap(),
		config:  cfg,
		log:     cfg.Logger,
	}

	if h.log == nil {
		h.log = ctxd.NoOpLogger{}
	}

	return h
}

// Connect registers client context, existing record with the same id is reused.
//
// Empty id is replaced with a generated one.
func (h *ClientHub) Connect(ctx context.Context, id, url string) *HubClient {
	if id == "" {
		id = uuid.NewString()
	}

	for {
		v, loaded := h.clients.LoadOrCompute(id, func() interface{} {
			return &HubClient{
				id:       id,
				url:      url,
				seq:      atomic.AddUint64(&h.seq, 1),
				messages: make(chan ClientMessage, h.config.QueueSize),
			}
		})

		c := v.(*HubClient)

		if !loaded {
			h.log.Debug(ctx, "client connected", "client", id, "url", url)

			return c
		}

		// Closed record is already removed by Disconnect.
		if c.setURL(url) {
			return c
		}
	}
}

// Disconnect removes client context.
func (h *ClientHub) Disconnect(ctx context.Context, id string) {
	v, ok := h.clients.LoadAndDelete(id)
	if !ok {
		return
	}

	v.(*HubClient).close()
	h.log.Debug(ctx, "client disconnected", "client", id)
}

// Get returns client by id.
func (h *ClientHub) Get(id string) (*HubClient, bool) {
	v, ok := h.clients.Load(id)
	if !ok {
		return nil, false
	}

	return v.(*HubClient), true
}

// MatchAll returns clients in order of connection.
func (h *ClientHub) MatchAll(_ context.Context) ([]Client, error) {
	var hc []*HubClient

	h.clients.Range(func(_ string, v interface{}) bool {
		hc = append(hc, v.(*HubClient))

		return true
	})

	sort.Slice(hc, func(i, j int) bool {
		return hc[i].seq < hc[j].seq
	})

	res := make([]Client, 0, len(hc))
	for _, c := range hc {
		res = append(res, c)
	}

	return res, nil
}

// Claim sets controller of all clients.
func (h *ClientHub) Claim(ctx context.Context, controller string) error {
	n := 0

	h.clients.Range(func(_ string, v interface{}) bool {
		v.(*HubClient).setController(controller)
		n++

		return true
	})

	h.log.Info(ctx, "claimed clients", "name", controller, "count", n)

	return nil
}

// OpenWindow registers a pending client context at address and calls configured opener.
//
// Messages posted to pending client are queued until it connects with the same id.
func (h *ClientHub) OpenWindow(ctx context.Context, url string) (Client, error) {
	if h.config.Opener != nil {
		if err := h.config.Opener(ctx, url); err != nil {
			return nil, ctxd.WrapError(ctx, err, "failed to open window", "url", url)
		}
	}

	return h.Connect(ctx, "", url), nil
}

// HubClient is a client context registered in ClientHub.
type HubClient struct {
	id       string
	seq      uint64
	messages chan ClientMessage

	mu         sync.Mutex
	url        string
	controller string
	focusedAt  time.Time
	closed     bool
}

// ID returns client identifier.
func (c *HubClient) ID() string {
	return c.id
}

// URL returns client address.
func (c *HubClient) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.url
}

// Controller returns name of controlling generation.
func (c *HubClient) Controller() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.controller
}

// FocusedAt returns time of last focus request.
func (c *HubClient) FocusedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.focusedAt
}

// Messages returns queue of posted messages, it is closed on disconnect.
func (c *HubClient) Messages() <-chan ClientMessage {
	return c.messages
}

// PostMessage queues message without blocking.
func (c *HubClient) PostMessage(_ context.Context, msg ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientGone
	}

	select {
	case c.messages <- msg:
		return nil
	default:
		return errClientBacklog
	}
}

// Focus brings client to foreground.
func (c *HubClient) Focus(ctx context.Context) error {
	now := time.Now()

	c.mu.Lock()
	c.focusedAt = now
	c.mu.Unlock()

	return c.PostMessage(ctx, NewClientMessage(Focus, now))
}

func (c *HubClient) setURL(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if url != "" {
		c.url = url
	}

	return true
}

func (c *HubClient) setController(name string) {
	c.mu.Lock()
	c.controller = name
	c.mu.Unlock()
}

func (c *HubClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.messages)
	}
}
