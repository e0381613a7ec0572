// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds the small network helpers shared by the
// conductor, credential service and checkpoint service clients:
// bounded response body reads and classification of errors that
// signal an ordinary connection teardown.
package netutil
