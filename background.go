package swcache

import (
	"context"
	"fmt"
	"net/http"
)

// Go spawns a best-effort background task, result is discarded.
//
// Task receives a context detached from cancellation of ctx, errors and panics are logged.
func (g *Gatekeeper) Go(ctx context.Context, task string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	g.tasks.Add(1)

	go func() {
		defer g.tasks.Done()

		defer func() {
			if r := recover(); r != nil {
				g.log.Error(ctx, "background task panicked",
					"name", g.version.Name,
					"task", task,
					"panic", fmt.Sprint(r))
			}
		}()

		if err := fn(ctx); err != nil {
			g.log.Warn(ctx, "background task failed",
				"name", g.version.Name,
				"task", task,
				"error", err)
		}
	}()
}

// Wait blocks until all background tasks are finished.
func (g *Gatekeeper) Wait() {
	g.tasks.Wait()
}

// refreshInBackground updates cached entry from network without delaying the caller.
//
// Only one refresh per key is in flight, concurrent requests for the same key are not refreshed.
func (g *Gatekeeper) refreshInBackground(ctx context.Context, req *http.Request, key string) {
	g.lock.Lock()
	if _, busy := g.refreshing[key]; busy {
		g.lock.Unlock()
		g.log.Debug(ctx, "refresh is already in progress", "name", g.version.Name, "key", key)

		return
	}

	g.refreshing[key] = struct{}{}
	g.lock.Unlock()

	req = req.Clone(context.WithoutCancel(ctx))

	g.Go(ctx, "refresh", func(ctx context.Context) error {
		defer func() {
			g.lock.Lock()
			delete(g.refreshing, key)
			g.lock.Unlock()
		}()

		g.stat.Add(ctx, MetricRefresh, 1, "name", g.version.Name)

		resp, err := g.network.Fetch(ctx, req)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", key, err)
		}

		if resp.Status != http.StatusOK {
			g.log.Debug(ctx, "refresh skipped", "name", g.version.Name, "key", key, "status", resp.Status)

			return nil
		}

		return g.put(ctx, key, resp)
	})
}
