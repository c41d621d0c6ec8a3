package swcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bool64/ctxd"
)

var errNoActive = errors.New("no active gatekeeper")

// Registration tracks active and waiting gatekeepers of an application scope.
//
// Events are routed to the active gatekeeper, without one all requests pass through.
type Registration struct {
	mu      sync.Mutex
	active  *Gatekeeper
	waiting *Gatekeeper
	log     ctxd.Logger
}

// NewRegistration creates empty registration.
func NewRegistration(logger ctxd.Logger) *Registration {
	if logger == nil {
		logger = ctxd.NoOpLogger{}
	}

	return &Registration{log: logger}
}

// Active returns active gatekeeper or nil.
func (r *Registration) Active() *Gatekeeper {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active
}

// Waiting returns installed gatekeeper waiting for activation or nil.
func (r *Registration) Waiting() *Gatekeeper {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.waiting
}

// Register installs gatekeeper and activates it if it skips waiting.
//
// Failed install leaves previously active gatekeeper in charge. Without one, the newest
// stored generation with entries is served, install error is returned in both cases.
func (r *Registration) Register(ctx context.Context, g *Gatekeeper) error {
	if err := g.Handle(ctx, InstallEvent{}); err != nil {
		r.log.Error(ctx, "gatekeeper install failed, keeping previous version",
			"name", g.Name(),
			"error", err)

		r.restore(ctx, g)

		return err
	}

	r.mu.Lock()
	if r.waiting != nil && r.waiting != g {
		r.waiting.setState(ctx, StateRedundant)
	}

	r.waiting = g
	r.mu.Unlock()

	g.lock.Lock()
	g.promote = func(ctx context.Context) error {
		return r.activate(ctx, g)
	}
	g.lock.Unlock()

	if g.skipsWaiting() {
		return r.activate(ctx, g)
	}

	r.log.Info(ctx, "gatekeeper is waiting for activation", "name", g.Name())

	return nil
}

// SkipWaiting activates waiting gatekeeper.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	w := r.Waiting()
	if w == nil {
		return nil
	}

	return w.SkipWaiting(ctx)
}

// restore activates gatekeeper over stored generation if nothing is active after failed install.
func (r *Registration) restore(ctx context.Context, failed *Gatekeeper) {
	r.mu.Lock()
	idle := r.active == nil && r.waiting == nil
	r.mu.Unlock()

	if !idle {
		return
	}

	g, err := failed.stored(ctx)
	if err != nil {
		r.log.Error(ctx, "failed to find stored cache generation", "name", failed.Name(), "error", err)

		return
	}

	if g == nil {
		return
	}

	r.mu.Lock()
	if r.active != nil || r.waiting != nil {
		r.mu.Unlock()

		return
	}

	r.waiting = g
	r.mu.Unlock()

	if err := r.activate(ctx, g); err != nil {
		r.log.Error(ctx, "failed to activate stored cache generation", "name", g.Name(), "error", err)

		return
	}

	r.log.Important(ctx, "serving stored cache generation", "name", g.Name(), "failed", failed.Name())
}

// activate switches registration to waiting gatekeeper, previous one is restored if activation fails.
func (r *Registration) activate(ctx context.Context, g *Gatekeeper) error {
	r.mu.Lock()
	if r.waiting != g {
		r.mu.Unlock()

		return nil
	}

	prev := r.active
	r.active = g
	r.waiting = nil
	r.mu.Unlock()

	if err := g.Handle(ctx, ActivateEvent{}); err != nil {
		g.setState(ctx, StateRedundant)

		r.mu.Lock()
		if r.active == g {
			r.active = prev
		}
		r.mu.Unlock()

		r.log.Error(ctx, "gatekeeper activation failed, keeping previous version",
			"name", g.Name(),
			"error", err)

		return fmt.Errorf("activate %s: %w", g.Name(), err)
	}

	if prev != nil && prev != g {
		prev.setState(ctx, StateRedundant)
	}

	r.log.Important(ctx, "gatekeeper activated", "name", g.Name())

	return nil
}

// Dispatch routes event to active gatekeeper.
//
// SKIP_WAITING message is routed to waiting gatekeeper if there is one.
func (r *Registration) Dispatch(ctx context.Context, e Event) error {
	switch e.Kind() {
	case KindInstall, KindActivate:
		return fmt.Errorf("%s is handled by Register", e.Kind())
	default:
	}

	r.mu.Lock()
	target := r.active

	if me, ok := e.(MessageEvent); ok && me.Message.Type == SkipWaiting && r.waiting != nil {
		target = r.waiting
	}
	r.mu.Unlock()

	if target != nil {
		return target.Handle(ctx, e)
	}

	switch ev := e.(type) {
	case *FetchEvent:
		return nil
	case MessageEvent:
		if ev.Port != nil {
			ev.Port.PostMessage(Failure(errNoActive))
		}

		return nil
	default:
		r.log.Warn(ctx, "event dropped", "event", e.Kind(), "error", errNoActive)

		return nil
	}
}
