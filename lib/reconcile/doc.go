// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile converges the apps installed in a conductor onto
// a desired list.
//
// A [Reconciler] run lists the live apps, installs and enables each
// desired app that is absent (privileged apps first), and then
// uninstalls every live app that is no longer desired unless its id
// carries a protected prefix. Runs are strictly sequential and
// idempotent: a second run over unchanged inputs makes no mutating
// conductor call.
//
// Three install conflicts are recovered in place. An app that is
// already installed is treated as installed and enabled. A cell that
// already exists is adopted for configured app-id substrings: the new
// app is wired to the cells of the live app sharing that substring
// and agent key. A chain-head-moved divergence while installing or
// enabling is repaired from the checkpoint service. An install that
// diverged proceeds to enable when the conductor registered the app;
// an enable that diverged is retried once. Any other error aborts the
// run.
package reconcile
