// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog marks a reconciliation pass as in progress so the
// next pass can tell that the previous one never finished.
//
// A pass calls [Write] before it touches the conductor and [Clear]
// when it returns, whether it succeeded or failed. A process that is
// killed, or a host that loses power mid-pass, leaves the file behind;
// the next pass finds it with [Check] and logs which run was
// interrupted before starting its own. Reconciliation is idempotent,
// so the marker is diagnostic: nothing is rolled back.
//
// The file is written atomically (temporary file, fsync, rename, fsync
// of the parent directory) so a reader never sees a partial state.
// [Check] ignores markers older than a maximum age, which keeps a
// marker from a long-dead host image from being reported forever.
package watchdog
