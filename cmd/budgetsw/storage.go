package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/vearutop/swcache"
	"github.com/vearutop/swcache/sqlitestore"
)

// store is an opened cache storage with shutdown routine.
type store struct {
	swcache.Storage
	close func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config, logger ctxd.Logger, tracker stats.Tracker) (store, error) {
	if cfg.Store != "memory" {
		s, err := sqlitestore.Open(cfg.Store, sqlitestore.Config{Logger: logger, Stats: tracker})
		if err != nil {
			return store{}, err
		}

		return store{
			Storage: s,
			close: func(_ context.Context) error {
				return s.Close()
			},
		}, nil
	}

	m := swcache.NewMemoryStorage(swcache.MemoryConfig{Logger: logger, Stats: tracker})

	if cfg.Snapshot == "" {
		return store{Storage: m, close: func(context.Context) error { return nil }}, nil
	}

	if err := restore(m, cfg.Snapshot); err != nil {
		return store{}, err
	}

	return store{
		Storage: m,
		close: func(ctx context.Context) error {
			return dump(ctx, m, cfg.Snapshot, logger)
		},
	}, nil
}

func restore(r swcache.Restorer, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = r.Restore(f)

	return err
}

func dump(ctx context.Context, d swcache.Dumper, path string, logger ctxd.Logger) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	n, err := d.Dump(f)
	if err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	logger.Info(ctx, "cache snapshot saved", "path", path, "entries", n)

	return nil
}
