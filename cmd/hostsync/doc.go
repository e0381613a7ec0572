// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Hostsync keeps the apps installed in a local conductor in line with
// a desired-state file.
//
// "hostsync reconcile" runs one pass: it resolves the host's agent
// key, obtains membrane proofs, installs and enables missing apps,
// adopts existing cells for apps that were renamed, repairs diverged
// source chains from the checkpoint service, and uninstalls apps that
// are no longer desired. "hostsync plan" shows what a pass would do.
// The remaining commands inspect or refresh one piece of that state.
//
// Configuration is read from the YAML file named by --config or
// HOSTSYNC_CONFIG. Signing goes through the hostsync-keystore daemon
// on keystore.socket_path.
package main
