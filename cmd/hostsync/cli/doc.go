// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the hostsync binary.
//
// A [Command] tree is dispatched by name: each level parses its own
// pflag set and either runs or hands the remaining arguments to a
// subcommand. Unknown commands and flags produce "did you mean"
// suggestions computed by edit distance. Every Run function receives
// the process context, so a SIGINT or SIGTERM cancels in-flight
// conductor and HTTP calls.
//
// Output conventions: human-readable text goes to stdout, logs go to
// stderr through [NewCommandLogger], and commands that support --json
// embed [JSONOutput] and call [JSONOutput.EmitJSON] before formatting
// text.
package cli
