// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/version"
)

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "hostsync",
		Description: `hostsync: keep a conductor's installed apps in line with a desired state.

Installs and enables missing apps under the host's agent key, obtains
membrane proofs from the registration service, repairs diverged source
chains from the checkpoint service, and uninstalls apps that are no
longer desired.`,
		Subcommands: []*cli.Command{
			reconcileCommand(),
			planCommand(),
			agentKeyCommand(),
			proofCommand(),
			resyncCommand(),
			seedBundleCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string) error {
					if len(args) > 0 {
						return cli.Validation("unexpected argument: %s", args[0])
					}
					fmt.Fprintf(stdout, "hostsync %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Preview a reconciliation pass",
				Command:     "hostsync plan --config /etc/hostsync/hostsync.yaml",
			},
			{
				Description: "Run one pass with debug logging",
				Command:     "hostsync reconcile -v",
			},
		},
	}
}
