// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name:   "hostsync",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{
				Name: "seed-bundle",
				Subcommands: []*Command{
					{
						Name: "create",
						Run: func(_ context.Context, args []string) error {
							called = "seed-bundle create"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{
				Name: "version",
				Run: func(context.Context, []string) error {
					called = "version"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"seed-bundle", "create", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "seed-bundle create" {
		t.Errorf("dispatched to %q, want %q", called, "seed-bundle create")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestExecutePassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	var seen any
	root := &Command{
		Name: "hostsync",
		Subcommands: []*Command{{
			Name: "reconcile",
			Run: func(ctx context.Context, _ []string) error {
				seen = ctx.Value(key{})
				return nil
			},
		}},
	}
	if err := root.Execute(ctx, []string{"reconcile"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "marker" {
		t.Errorf("context value = %v, want marker", seen)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var role string
	var regenerate bool
	var rest []string

	command := &Command{
		Name: "proof",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("proof", pflag.ContinueOnError)
			flagSet.StringVar(&role, "role", "", "role name")
			flagSet.BoolVar(&regenerate, "regenerate", false, "regenerate")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			rest = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--role", "transactor", "--regenerate", "tail"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if role != "transactor" || !regenerate {
		t.Errorf("role=%q regenerate=%v", role, regenerate)
	}
	if len(rest) != 1 || rest[0] != "tail" {
		t.Errorf("args = %v, want [tail]", rest)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name:   "hostsync",
		Output: &bytes.Buffer{},
		Subcommands: []*Command{
			{Name: "reconcile", Run: func(context.Context, []string) error { return nil }},
			{Name: "resync", Run: func(context.Context, []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"reconcil"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), `did you mean "reconcile"`) {
		t.Errorf("error = %q, want a reconcile suggestion", err)
	}

	err = root.Execute(context.Background(), []string{"frobnicate"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "plan",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--jsn"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "did you mean --json") {
		t.Errorf("error = %q, want a --json suggestion", err)
	}
}

func TestExecuteGroupWithoutSubcommand(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:   "hostsync",
		Output: &help,
		Subcommands: []*Command{
			{Name: "reconcile", Summary: "Run one reconciliation pass"},
		},
	}

	if err := root.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected subcommand required")
	}
	if !strings.Contains(help.String(), "Run one reconciliation pass") {
		t.Errorf("help output missing summary:\n%s", help.String())
	}
}

func TestExecuteHelpFlag(t *testing.T) {
	var help bytes.Buffer
	ran := false
	root := &Command{
		Name:   "hostsync",
		Output: &help,
		Subcommands: []*Command{{
			Name:        "plan",
			Description: "Show what reconcile would change.",
			Run: func(context.Context, []string) error {
				ran = true
				return nil
			},
		}},
	}

	if err := root.Execute(context.Background(), []string{"plan", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran {
		t.Error("Run called for --help")
	}
	if !strings.Contains(help.String(), "hostsync plan [flags]") {
		t.Errorf("help output missing usage line:\n%s", help.String())
	}
}

func TestExecuteReturnsRunError(t *testing.T) {
	want := &ExitError{Code: 2}
	command := &Command{
		Name: "plan",
		Run:  func(context.Context, []string) error { return want },
	}
	err := command.Execute(context.Background(), nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Errorf("error = %v, want exit code 2", err)
	}
}

func TestPrintHelp(t *testing.T) {
	root := &Command{
		Name:        "hostsync",
		Description: "Keep conductor apps in sync.",
		Subcommands: []*Command{
			{Name: "reconcile", Summary: "Run one reconciliation pass"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{Description: "Preview changes", Command: "hostsync plan --json"},
		},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	output := buffer.String()
	for _, want := range []string{
		"Keep conductor apps in sync.",
		"hostsync <command> [flags]",
		"reconcile",
		"Print version information",
		"# Preview changes",
		"hostsync plan --json",
		"Run 'hostsync <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help missing %q:\n%s", want, output)
		}
	}
}
