// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
)

type resyncParams struct {
	globalFlags
	AppID string
}

func resyncCommand() *cli.Command {
	var params resyncParams

	return &cli.Command{
		Name:    "resync",
		Summary: "Restore an app's cells from the checkpoint service",
		Description: `Fetch every checkpoint record for each cell of an installed app and
graft them into the conductor without validation.

reconcile does this by itself when enabling an app fails because the
chain head moved. Use this command to repair an app that is already
enabled.`,
		Usage: "hostsync resync --app <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("resync", pflag.ContinueOnError)
			params.globalFlags.add(flagSet)
			flagSet.StringVar(&params.AppID, "app", "", "installed app id (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.AppID == "" {
				return cli.Validation("--app is required")
			}
			env, err := openEnvironment(ctx, &params.globalFlags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			restorer := env.resynchronizer()
			if restorer == nil {
				return cli.Validation("checkpoint.url is not configured")
			}
			cells, err := env.admin.ListAppCells(ctx, params.AppID)
			if err != nil {
				return fmt.Errorf("listing cells of %s: %w", params.AppID, err)
			}
			if len(cells) == 0 {
				return cli.NotFound("app %q has no cells", params.AppID)
			}
			grafted, err := restorer.Restore(ctx, cells, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: grafted %d records into %d cells\n", params.AppID, grafted, len(cells))
			return nil
		},
	}
}
