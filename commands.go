package swcache

import (
	"context"
	"fmt"
)

type command func(ctx context.Context) Reply

func (g *Gatekeeper) commandTable() map[MessageType]command {
	return map[MessageType]command{
		SkipWaiting: func(ctx context.Context) Reply {
			if err := g.SkipWaiting(ctx); err != nil {
				return Failure(err)
			}

			return Reply{Success: true}
		},

		GetCacheNames: func(_ context.Context) Reply {
			return Reply{Success: true, CacheNames: []string{g.version.Name}}
		},

		ClearCache: func(ctx context.Context) Reply {
			deleted, err := g.storage.Delete(ctx, g.version.Name)
			if err != nil {
				return Failure(err)
			}

			if !deleted {
				return Failure(ErrGenerationNotFound)
			}

			g.log.Important(ctx, "cache generation cleared on demand", "name", g.version.Name)

			return Reply{Success: true}
		},

		UpdateCache: func(ctx context.Context) Reply {
			if err := g.updates.Allow(); err != nil {
				return Failure(err)
			}

			if err := g.populate(WithReload(ctx)); err != nil {
				g.log.Warn(ctx, "manifest update failed", "name", g.version.Name, "error", err)

				return Failure(err)
			}

			return Reply{Success: true}
		},

		SyncData: func(ctx context.Context) Reply {
			if err := g.runSync(ctx); err != nil {
				return Failure(err)
			}

			return Reply{Success: true}
		},
	}
}

// HandleMessage executes control message, failures are reported in reply.
func (g *Gatekeeper) HandleMessage(ctx context.Context, msg Message) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error(ctx, "control message panicked", "name", g.version.Name, "type", msg.Type, "panic", fmt.Sprint(r))

			reply = Reply{Error: fmt.Sprint(r)}
		}
	}()

	g.log.Debug(ctx, "received message", "name", g.version.Name, "type", msg.Type, "client", ClientID(ctx))

	cmd, ok := g.commands[msg.Type]
	if !ok {
		return Failure(fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type))
	}

	return cmd(ctx)
}
