// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small secrets at rest under an operator
// passphrase. It wraps filippo.io/age's scrypt recipient: the key
// custodian seals every agent seed it holds before writing it to its
// key directory, and opens them again with the unlock passphrase at
// startup.
//
// Passphrases and opened plaintext travel as *secret.Buffer values so
// that they live outside the Go heap.
package sealed
