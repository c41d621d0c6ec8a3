package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bool64/stats"
	"github.com/urfave/cli/v3"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "list cache generations and stored requests",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "keys", Usage: "print request keys of every generation"},
		},
		Action: inspect,
	}
}

func inspect(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger, stats.NoOp{})
	if err != nil {
		return err
	}

	// Inspection must not rewrite snapshot.
	if cfg.Store == "memory" {
		st.close = func(context.Context) error { return nil }
	}

	defer func() {
		if err := st.close(ctx); err != nil {
			logger.Error(ctx, "failed to close storage", "error", err)
		}
	}()

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}

	return printGenerations(ctx, w, st, cmd.Bool("keys"))
}

func printGenerations(ctx context.Context, w io.Writer, st store, withKeys bool) error {
	names, err := st.Keys(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		_, err := fmt.Fprintln(w, "no cache generations")

		return err
	}

	for _, name := range names {
		c, err := st.Lookup(ctx, name)
		if err != nil {
			return err
		}

		keys, err := c.Keys(ctx)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "%s\t%d entries\n", name, len(keys)); err != nil {
			return err
		}

		if !withKeys {
			continue
		}

		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "  %s\n", k); err != nil {
				return err
			}
		}
	}

	return nil
}
