package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"time"

	"github.com/bool64/ctxd"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"
	"github.com/vearutop/swcache"
	"github.com/vearutop/swcache/httpgate"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve application through offline cache gatekeeper",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address"},
			&cli.StringFlag{Name: "upstream", Usage: "application server URL, version origin by default"},
			&cli.BoolFlag{Name: "manual-activation", Usage: "wait for SKIP_WAITING message before takeover"},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	if cmd.IsSet("listen") {
		cfg.Listen = cmd.String("listen")
	}

	if cmd.IsSet("upstream") {
		cfg.Upstream = cmd.String("upstream")
	}

	if cmd.IsSet("manual-activation") {
		cfg.ManualActivation = cmd.Bool("manual-activation")
	}

	v, err := loadVersion(cfg.VersionFile)
	if err != nil {
		return err
	}

	tracker := newExpvarTracker("swcache")

	st, err := openStore(ctx, cfg, logger, tracker)
	if err != nil {
		return err
	}

	fetcher, err := httpgate.NewFetcher(httpgate.FetcherConfig{
		Origin:   v.Origin,
		Upstream: cfg.Upstream,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	hub := swcache.NewClientHub(swcache.ClientHubConfig{
		Logger: logger,
		Opener: func(ctx context.Context, url string) error {
			logger.Important(ctx, "window requested", "url", url)

			return nil
		},
	})

	notifications := swcache.NewNotificationCenter(swcache.NotificationConfig{Logger: logger})

	g, err := swcache.New(swcache.Config{
		Version:          v,
		Storage:          st,
		Network:          fetcher,
		Clients:          hub,
		Notifier:         notifications,
		ManualActivation: cfg.ManualActivation,
		Logger:           logger,
		Stats:            tracker,
	})
	if err != nil {
		return err
	}

	reg := swcache.NewRegistration(logger)

	if err := reg.Register(ctx, g); err != nil {
		if a := reg.Active(); a != nil {
			logger.Warn(ctx, "install failed, serving stored cache generation", "name", a.Name(), "error", err)
		} else {
			logger.Error(ctx, "serving without gatekeeper", "error", err)
		}
	}

	gw, err := httpgate.New(httpgate.Config{
		Registration:  reg,
		Hub:           hub,
		Notifications: notifications,
		PassThrough:   fetcher.Proxy(),
		Logger:        logger,
		Stats:         tracker,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Handle("/debug/vars", expvar.Handler())
	r.Mount("/", gw)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Important(ctx, "listening", "addr", cfg.Listen, "version", v.Name, "origin", v.Origin)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()

		return shutdown(ctx, srv, g, st, logger)
	})

	return eg.Wait()
}

func shutdown(ctx context.Context, srv *http.Server, g *swcache.Gatekeeper, st store, logger ctxd.Logger) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	logger.Info(sctx, "shutting down")

	err := srv.Shutdown(sctx)

	g.Wait()

	return errors.Join(err, st.close(sctx))
}

func setup(cmd *cli.Command) (config, ctxd.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}

	if cmd.IsSet("store") {
		cfg.Store = cmd.String("store")
	}

	if cmd.IsSet("snapshot") {
		cfg.Snapshot = cmd.String("snapshot")
	}

	if cmd.IsSet("version-file") {
		cfg.VersionFile = cmd.String("version-file")
	}

	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}

	w := cmd.Root().ErrWriter
	if w == nil {
		w = os.Stderr
	}

	logger, err := newLogger(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}

	return cfg, logger, nil
}
