// Package main provides budgetsw, offline cache gateway of budget calculator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	return 0
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "budgetsw",
		Usage: "offline cache gateway of budget calculator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Usage: `"memory" or SQLite database path`},
			&cli.StringFlag{Name: "snapshot", Usage: "memory store snapshot file"},
			&cli.StringFlag{Name: "version-file", Usage: "YAML file with version configuration"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			inspectCommand(),
			pushCommand(),
		},
	}
}
