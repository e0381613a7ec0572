// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens pooled SQLite connections with the pragmas
// hostsync's local stores expect: WAL journaling, a busy timeout, and
// NORMAL synchronous mode. It wraps zombiezen.com/go/sqlite/sqlitex.Pool
// and keeps its Take/Put API.
//
// The credential manager's SQLite store is the only caller today. It
// installs its schema through [Config].OnConnect.
package sqlitepool
