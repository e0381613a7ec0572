// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads hostsync's YAML configuration.
//
// The file is named by the HOSTSYNC_CONFIG environment variable (via
// [Load]) or a --config flag (via [LoadFile]). There is no discovery
// and no fallback search: the one file is the whole configuration, and
// no other environment variable overrides a value in it.
//
// After loading, path fields are expanded: ${HOME}, ${HOSTSYNC_STATE}
// (the resolved paths.state) and ${VAR:-default} patterns.
//
// Everything the rest of the module reads from the environment flows
// through a [Config]; constructors take the sub-struct they need.
//
// This package depends on no other hostsync packages.
package config
