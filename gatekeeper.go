package swcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"golang.org/x/sync/errgroup"
)

// State is a lifecycle state of gatekeeper.
type State int32

// Lifecycle states.
const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

var stateNames = [...]string{"parsed", "installing", "installed", "activating", "activated", "redundant"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// Config is a configuration of Gatekeeper.
type Config struct {
	// Version is a configuration of deployed version, required.
	Version Version

	// Storage keeps cache generations, required.
	Storage Storage

	// Network fetches responses, Offline by default.
	Network Network

	// Clients gives access to client contexts, NoOpClients by default.
	Clients Clients

	// Notifier displays push notifications, NoOpNotifier by default.
	Notifier Notifier

	// ManualActivation disables immediate takeover after install,
	// activation happens on SKIP_WAITING message.
	ManualActivation bool

	// Logger collects messages with context.
	Logger ctxd.Logger

	// Stats tracks stats.
	Stats stats.Tracker

	// Now is a time source, time.Now by default.
	Now func() time.Time
}

// Gatekeeper mediates between network and cache generation of a single version.
//
// Please use New to create instance.
type Gatekeeper struct {
	version  Version
	storage  Storage
	network  Network
	clients  Clients
	notifier Notifier

	config   Config
	log      ctxd.Logger
	stat     stats.Tracker
	commands map[MessageType]command
	updates  *Throttle

	tasks sync.WaitGroup

	lock       sync.Mutex          // Securing refreshing and state fields.
	refreshing map[string]struct{} // Preventing concurrent background refresh per key.
	state      State
	skipWait   bool
	promote    func(ctx context.Context) error

	dispatcher *Dispatcher
}

// New creates gatekeeper for a version.
func New(cfg Config) (*Gatekeeper, error) {
	v, err := cfg.Version.Prepare()
	if err != nil {
		return nil, err
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	if cfg.Network == nil {
		cfg.Network = Offline{}
	}

	if cfg.Clients == nil {
		cfg.Clients = NoOpClients{}
	}

	if cfg.Notifier == nil {
		cfg.Notifier = NoOpNotifier{}
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Gatekeeper{
		version:    v,
		storage:    cfg.Storage,
		network:    cfg.Network,
		clients:    cfg.Clients,
		notifier:   cfg.Notifier,
		config:     cfg,
		log:        cfg.Logger,
		stat:       cfg.Stats,
		updates:    &Throttle{SkipInterval: v.UpdateSkipInterval},
		refreshing: make(map[string]struct{}),
	}

	if g.log == nil {
		g.log = ctxd.NoOpLogger{}
	}

	if g.stat == nil {
		g.stat = stats.NoOp{}
	}

	g.commands = g.commandTable()
	g.dispatcher = NewDispatcher(g)

	return g, nil
}

// Version returns prepared configuration.
func (g *Gatekeeper) Version() Version {
	return g.version
}

// Name returns name of current cache generation.
func (g *Gatekeeper) Name() string {
	return g.version.Name
}

// State returns lifecycle state.
func (g *Gatekeeper) State() State {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.state
}

func (g *Gatekeeper) setState(ctx context.Context, s State) {
	g.lock.Lock()
	prev := g.state
	g.state = s
	g.lock.Unlock()

	g.log.Debug(ctx, "gatekeeper state changed", "name", g.version.Name, "from", prev.String(), "to", s.String())
}

// Handle dispatches lifecycle event.
func (g *Gatekeeper) Handle(ctx context.Context, e Event) error {
	return g.dispatcher.Dispatch(ctx, e)
}

// Install populates cache generation with manifest assets.
//
// On failure generation created by this install is removed and gatekeeper becomes redundant.
func (g *Gatekeeper) Install(ctx context.Context) error {
	name := g.version.Name

	g.setState(ctx, StateInstalling)
	g.log.Info(ctx, "installing", "name", name, "manifest", g.version.Manifest)

	existed, err := g.storage.Has(ctx, name)
	if err != nil {
		g.setState(ctx, StateRedundant)

		return ctxd.WrapError(ctx, err, "failed to check cache generation", "name", name)
	}

	if err := g.populate(WithReload(ctx)); err != nil {
		g.log.Error(ctx, "cache population failed", "name", name, "error", err)

		if !existed {
			if _, derr := g.storage.Delete(ctx, name); derr != nil {
				g.log.Error(ctx, "failed to remove incomplete cache generation", "name", name, "error", derr)
			}
		}

		g.setState(ctx, StateRedundant)

		return fmt.Errorf("install %s: %w", name, err)
	}

	g.setState(ctx, StateInstalled)
	g.stat.Add(ctx, MetricInstalled, 1, "name", name)

	if !g.config.ManualActivation {
		g.lock.Lock()
		g.skipWait = true
		g.lock.Unlock()
	}

	return nil
}

// populate fetches all manifest entries and stores them only if every fetch succeeded.
func (g *Gatekeeper) populate(ctx context.Context) error {
	urls, err := g.version.ManifestURLs()
	if err != nil {
		return err
	}

	responses := make([]*Response, len(urls))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, u := range urls {
		i, u := i, u

		eg.Go(func() error {
			req, err := http.NewRequestWithContext(egCtx, http.MethodGet, u.String(), nil)
			if err != nil {
				return err
			}

			resp, err := g.network.Fetch(egCtx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}

			if !resp.OK() {
				return fmt.Errorf("%w: %s responded with %d", ErrBadStatus, u, resp.Status)
			}

			responses[i] = resp

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	c, err := g.storage.Open(ctx, g.version.Name)
	if err != nil {
		return err
	}

	for i, u := range urls {
		if err := c.Put(ctx, Key(http.MethodGet, u), responses[i]); err != nil {
			return ctxd.WrapError(ctx, err, "failed to store manifest entry", "url", u.String())
		}
	}

	if keys, err := c.Keys(ctx); err == nil {
		g.stat.Set(ctx, MetricEntries, float64(len(keys)), "name", g.version.Name)
	}

	return nil
}

// stored creates installed gatekeeper over the newest non-empty generation in storage.
//
// Configuration is shared with g, nil is returned if storage has no entries.
func (g *Gatekeeper) stored(ctx context.Context) (*Gatekeeper, error) {
	names, err := g.storage.Keys(ctx)
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to list cache generations")
	}

	for i := len(names) - 1; i >= 0; i-- {
		c, err := g.storage.Lookup(ctx, names[i])
		if errors.Is(err, ErrGenerationNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		keys, err := c.Keys(ctx)
		if err != nil {
			return nil, ctxd.WrapError(ctx, err, "failed to list cache entries", "name", names[i])
		}

		if len(keys) == 0 {
			continue
		}

		cfg := g.config
		cfg.Version = g.version
		cfg.Version.Name = names[i]

		s, err := New(cfg)
		if err != nil {
			return nil, err
		}

		s.state = StateInstalled
		s.skipWait = true

		return s, nil
	}

	return nil, nil
}

// SkipWaiting marks installed gatekeeper for immediate activation.
func (g *Gatekeeper) SkipWaiting(ctx context.Context) error {
	g.lock.Lock()
	g.skipWait = true
	promote := g.promote
	g.lock.Unlock()

	if promote != nil {
		return promote(ctx)
	}

	return nil
}

func (g *Gatekeeper) skipsWaiting() bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.skipWait
}

// Activate removes cache generations of other versions and takes control over open clients.
func (g *Gatekeeper) Activate(ctx context.Context) error {
	name := g.version.Name

	g.setState(ctx, StateActivating)

	names, err := g.storage.Keys(ctx)
	if err != nil {
		return ctxd.WrapError(ctx, err, "failed to list cache generations")
	}

	for _, n := range names {
		if n == name {
			continue
		}

		if _, err := g.storage.Delete(ctx, n); err != nil {
			return ctxd.WrapError(ctx, err, "failed to delete stale cache generation", "stale", n)
		}

		g.log.Info(ctx, "deleted stale cache generation", "name", name, "stale", n)
		g.stat.Add(ctx, MetricDeleted, 1, "name", name)
	}

	g.setState(ctx, StateActivated)

	if err := g.clients.Claim(ctx, name); err != nil {
		g.log.Warn(ctx, "failed to claim clients", "name", name, "error", err)
	}

	msg := NewClientMessage(Activated, g.config.Now())
	msg.CacheName = name

	if err := g.broadcast(ctx, msg); err != nil {
		g.log.Warn(ctx, "failed to notify clients about activation", "name", name, "error", err)
	}

	return nil
}

// Fetch handles outgoing request.
//
// If request is not intercepted, false is returned and request must be performed without changes.
func (g *Gatekeeper) Fetch(ctx context.Context, req *http.Request) (*Response, bool, error) {
	req = g.absolute(req)

	if !g.version.ShouldIntercept(req) {
		g.stat.Add(ctx, MetricPassThrough, 1, "name", g.version.Name)

		return nil, false, nil
	}

	key := RequestKey(req)
	nav := IsNavigation(req)

	if resp, err := g.match(ctx, key); err == nil {
		if ShouldRefresh(req) {
			g.refreshInBackground(ctx, req, key)
		}

		return resp, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		g.log.Warn(ctx, "failed to read cache", "name", g.version.Name, "key", key, "error", err)
	}

	resp, err := g.network.Fetch(ctx, req)
	if err != nil {
		return g.fallback(ctx, key, nav, err)
	}

	if ShouldStore(resp) {
		clone := resp.Clone()

		g.Go(ctx, "store response", func(ctx context.Context) error {
			return g.put(ctx, key, clone)
		})
	}

	return resp, true, nil
}

func (g *Gatekeeper) fallback(ctx context.Context, key string, nav bool, netErr error) (*Response, bool, error) {
	g.log.Debug(ctx, "network request failed", "name", g.version.Name, "key", key, "error", netErr)

	if !nav {
		return nil, true, fmt.Errorf("%w for %s: %v", ErrNoResponse, key, netErr)
	}

	g.stat.Add(ctx, MetricOffline, 1, "name", g.version.Name)

	u, err := g.version.Resolve(g.version.OfflineDocument)
	if err == nil {
		if resp, err := g.match(ctx, Key(http.MethodGet, u)); err == nil {
			return resp, true, nil
		}
	}

	g.log.Warn(ctx, "offline document is not available", "name", g.version.Name, "document", g.version.OfflineDocument)

	return OfflineResponse(), true, nil
}

// match looks up current generation without creating it.
func (g *Gatekeeper) match(ctx context.Context, key string) (*Response, error) {
	c, err := g.storage.Lookup(ctx, g.version.Name)
	if errors.Is(err, ErrGenerationNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return c.Match(ctx, key)
}

// put writes to installed generation, generation deleted by activation of another version stays deleted.
func (g *Gatekeeper) put(ctx context.Context, key string, resp *Response) error {
	if g.State() == StateRedundant {
		g.log.Debug(ctx, "write skipped, gatekeeper is redundant", "name", g.version.Name, "key", key)

		return nil
	}

	c, err := g.storage.Lookup(ctx, g.version.Name)
	if err == nil {
		err = c.Put(ctx, key, resp)
	}

	if err != nil {
		g.stat.Add(ctx, MetricWriteFailed, 1, "name", g.version.Name)

		return ctxd.WrapError(ctx, err, "failed to store response", "key", key)
	}

	return nil
}

// absolute resolves request URL against origin.
func (g *Gatekeeper) absolute(req *http.Request) *http.Request {
	if req.URL == nil || req.URL.IsAbs() {
		return req
	}

	r := req.Clone(req.Context())
	r.URL = g.version.OriginURL().ResolveReference(req.URL)

	return r
}
