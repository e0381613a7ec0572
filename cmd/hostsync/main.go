// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCommand().Execute(ctx, args)
	code, print := cli.ExitStatus(err)
	if print {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return code
}
