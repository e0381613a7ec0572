// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/reconcile"
	"github.com/bureau-foundation/hostsync/lib/watchdog"
)

// watchdogMaxAge bounds how old an unfinished-pass marker may be and
// still be reported.
const watchdogMaxAge = 24 * time.Hour

type reconcileParams struct {
	globalFlags
	cli.JSONOutput
}

func reconcileCommand() *cli.Command {
	var params reconcileParams

	return &cli.Command{
		Name:    "reconcile",
		Summary: "Run one reconciliation pass",
		Description: `Install, enable, adopt and uninstall apps until the conductor matches
the desired-state file.

Privileged apps are handled first. Apps that are already installed are
left as they are. A chain-head-moved failure while enabling an app is
repaired from the checkpoint service when checkpoint.url is set, and
the enable is retried once. Any other failure stops the pass.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
			params.globalFlags.add(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			env, err := openEnvironment(ctx, &params.globalFlags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			specs, err := env.desiredApps()
			if err != nil {
				return err
			}
			reconciler, err := env.reconciler()
			if err != nil {
				return err
			}
			report, err := runWatched(env, "reconcile", func() (*reconcile.Report, error) {
				return reconciler.Run(ctx, specs)
			})
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, report); done {
				return err
			}
			printReport(stdout, report)
			return nil
		},
	}
}

func printReport(w io.Writer, report *reconcile.Report) {
	fmt.Fprintf(w, "run %s\n", report.RunID)
	for _, group := range []struct {
		label string
		ids   []string
	}{
		{"installed", report.Installed},
		{"already installed", report.AlreadyInstalled},
		{"adopted", report.Adopted},
		{"present", report.Present},
		{"uninstalled", report.Uninstalled},
		{"protected", report.Protected},
	} {
		if len(group.ids) > 0 {
			fmt.Fprintf(w, "  %-18s %s\n", group.label+":", strings.Join(group.ids, ", "))
		}
	}
	if len(report.Resynced) > 0 {
		ids := make([]string, 0, len(report.Resynced))
		for id := range report.Resynced {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-18s %s (%d records)\n", "resynced:", id, report.Resynced[id])
		}
	}
}

// runWatched runs pass under a watchdog marker in the state
// directory, first reporting a marker left by an interrupted pass.
func runWatched(env *environment, command string, pass func() (*reconcile.Report, error)) (*reconcile.Report, error) {
	path := filepath.Join(env.config.Paths.State, command+"-watchdog.json")
	previous, found, err := watchdog.Check(path, watchdogMaxAge)
	if err != nil {
		env.logger.Warn("unreadable watchdog marker", "path", path, "error", err)
	} else if found {
		env.logger.Warn("previous pass did not finish",
			"command", previous.Command,
			"pid", previous.PID,
			"started", previous.Started,
		)
	}

	if err := watchdog.Write(path, watchdog.Begin(command)); err != nil {
		return nil, err
	}
	report, err := pass()
	if clearErr := watchdog.Clear(path); clearErr != nil {
		env.logger.Warn("clearing watchdog marker", "error", clearErr)
	}
	return report, err
}
