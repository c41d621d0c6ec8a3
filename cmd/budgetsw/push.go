package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"
)

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "deliver push message to a running gateway",
		ArgsUsage: "[payload]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "gateway URL", Value: "http://localhost:8080"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return push(ctx, cmd.String("addr"), strings.Join(cmd.Args().Slice(), " "))
		},
	}
}

func push(ctx context.Context, addr, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(addr, "/")+"/sw/push", strings.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}

	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	return nil
}
