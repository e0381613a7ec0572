// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive bytes (the device password, the keystore
// unlock passphrase, decrypted seeds) outside the Go heap.
//
// A [Buffer] is an anonymous mmap region that is mlocked against swap,
// excluded from core dumps, and zeroed and unmapped on Close. The
// garbage collector never sees the memory, so it cannot leave stray
// copies behind.
//
// Depends on golang.org/x/sys/unix.
package secret
