// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package app defines the desired-app model shared by the desired-state
// loader, the credential manager and the reconciler.
//
// An app is identified by "name:version[:tag]", optionally suffixed
// with "::<namespace>" when a namespace override is configured. Two
// [Spec] values with the same derived id are the same app. Bundle file
// names encode the same triple: "foo.1.0002.happ" is foo, version 1,
// tag 0002.
package app
