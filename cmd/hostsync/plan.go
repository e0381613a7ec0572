// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/reconcile"
)

type planParams struct {
	globalFlags
	cli.JSONOutput
	ExitCode bool
}

func planCommand() *cli.Command {
	var params planParams

	return &cli.Command{
		Name:    "plan",
		Summary: "Show what reconcile would change",
		Description: `List the apps a reconciliation pass would install, leave in place,
uninstall, or keep because of a protected prefix. Nothing is changed.

With --exit-code the command exits 2 when the plan is not empty, for
use in health checks.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			params.globalFlags.add(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.BoolVar(&params.ExitCode, "exit-code", false, "exit 2 when changes are pending")
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
			plan, err := reconciler.Plan(ctx, specs)
			if err != nil {
				return err
			}
			done, err := params.EmitJSON(stdout, plan)
			if err != nil {
				return err
			}
			if !done {
				printPlan(stdout, cli.NewPalette(stdout), plan)
			}
			if params.ExitCode && !plan.Empty() {
				return &cli.ExitError{Code: 2}
			}
			return nil
		},
	}
}

func printPlan(w io.Writer, palette cli.Palette, plan *reconcile.Plan) {
	if plan.Empty() && len(plan.Ensure) == 0 && len(plan.Protected) == 0 {
		fmt.Fprintln(w, "nothing desired and nothing installed")
		return
	}

	groups := []struct {
		action string
		style  lipgloss.Style
		apps   []reconcile.PlannedApp
	}{
		{"install", palette.Add, plan.Install},
		{"keep", palette.Keep, plan.Ensure},
		{"uninstall", palette.Remove, plan.Uninstall},
		{"protected", palette.Protect, plan.Protected},
	}

	// Pad before styling so escape sequences do not count toward the
	// column width.
	width := len("APP")
	for _, group := range groups {
		for _, planned := range group.apps {
			width = max(width, len(planned.AppID))
		}
	}
	fmt.Fprintf(w, "%-10s %-*s %s\n", "ACTION", width, "APP", "STATUS")
	for _, group := range groups {
		for _, planned := range group.apps {
			status := string(planned.Status)
			if status == "" {
				status = palette.Faint.Render("-")
			}
			fmt.Fprintf(w, "%s %-*s %s\n",
				group.style.Render(fmt.Sprintf("%-10s", group.action)), width, planned.AppID, status)
		}
	}
}
