package swcache

import (
	"context"
	"time"

	"github.com/bool64/ctxd"
)

// Sync handles background sync opportunity, only configured tag triggers data sync.
//
// Failures are broadcast to clients as SYNC_ERROR and are not returned.
func (g *Gatekeeper) Sync(ctx context.Context, tag string) error {
	if tag != g.version.SyncTag {
		g.log.Debug(ctx, "ignoring background sync", "name", g.version.Name, "tag", tag)

		return nil
	}

	if err := g.runSync(ctx); err != nil {
		g.log.Error(ctx, "background sync failed", "name", g.version.Name, "tag", tag, "error", err)
	}

	return nil
}

// runSync asks clients to synchronize data and reports completion after grace delay.
func (g *Gatekeeper) runSync(ctx context.Context) error {
	err := g.syncClients(ctx)
	if err == nil {
		return nil
	}

	msg := NewClientMessage(SyncError, g.config.Now())
	msg.Error = err.Error()

	if berr := g.broadcast(context.WithoutCancel(ctx), msg); berr != nil {
		g.log.Error(ctx, "failed to report sync error", "name", g.version.Name, "error", berr)
	}

	return err
}

func (g *Gatekeeper) syncClients(ctx context.Context) error {
	if err := g.broadcast(ctx, NewClientMessage(SyncRequest, g.config.Now())); err != nil {
		return err
	}

	timer := time.NewTimer(g.version.SyncGrace)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	return g.broadcast(ctx, NewClientMessage(SyncCompleted, g.config.Now()))
}

// broadcast posts message to every open client, delivery failures of single clients are logged.
func (g *Gatekeeper) broadcast(ctx context.Context, msg ClientMessage) error {
	clients, err := g.clients.MatchAll(ctx)
	if err != nil {
		return ctxd.WrapError(ctx, err, "failed to list clients")
	}

	for _, c := range clients {
		if err := c.PostMessage(ctx, msg); err != nil {
			g.log.Warn(ctx, "failed to post message to client",
				"name", g.version.Name,
				"client", c.ID(),
				"type", msg.Type,
				"error", err)

			continue
		}

		g.stat.Add(ctx, MetricBroadcast, 1, "name", g.version.Name, "type", string(msg.Type))
	}

	return nil
}

// Push displays notification built from push payload.
func (g *Gatekeeper) Push(ctx context.Context, payload []byte) error {
	n := ParsePush(payload, g.version.Notification, g.config.Now())

	if err := g.notifier.ShowNotification(ctx, n); err != nil {
		return ctxd.WrapError(ctx, err, "failed to show notification", "title", n.Title)
	}

	return nil
}

// NotificationClick reacts to user activation of notification.
//
// Dismiss action only closes notification, other actions focus an open in-scope client
// and notify it about chosen action, or open a new client at notification address.
func (g *Gatekeeper) NotificationClick(ctx context.Context, n Notification, action string) error {
	if action == ActionDismiss {
		g.log.Debug(ctx, "notification dismissed", "name", g.version.Name, "id", n.ID)

		return nil
	}

	clients, err := g.clients.MatchAll(ctx)
	if err != nil {
		return ctxd.WrapError(ctx, err, "failed to list clients")
	}

	for _, c := range clients {
		if !g.version.InScope(c.URL()) {
			continue
		}

		if err := c.Focus(ctx); err != nil {
			g.log.Warn(ctx, "failed to focus client", "client", c.ID(), "error", err)
		}

		msg := NewClientMessage(NotificationClick, g.config.Now())
		msg.Action = action

		if action == "" {
			msg.Action = ActionOpen
		}

		return c.PostMessage(ctx, msg)
	}

	target := n.URL
	if target == "" {
		target = g.version.Notification.URL
	}

	u, err := g.version.Resolve(target)
	if err != nil {
		return ctxd.WrapError(ctx, err, "invalid notification url", "url", target)
	}

	if _, err := g.clients.OpenWindow(ctx, u.String()); err != nil {
		return err
	}

	return nil
}
