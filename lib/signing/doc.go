// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing builds signed, single-use call envelopes.
//
// Every privileged operation hostsync performs against an installed
// app, and every request it sends to the credential and checkpoint
// services, carries a fresh 256-bit nonce, a timestamp or expiry, and
// an ed25519 signature produced by an external key [Custodian]. The
// private key never enters this process.
//
// What gets signed is the BLAKE3-256 digest of the deterministic CBOR
// encoding of the unsigned call. The encoded bytes travel alongside
// the signature so the verifier hashes exactly what was signed.
//
// Signing failures are never retried: a nonce failure returns
// [*NonceError] and a custodian failure returns [*SigningError].
package signing
