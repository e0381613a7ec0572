// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential acquires and caches the credentials that gate
// app installation: the host's agent key and the membrane proofs the
// credential service issues for it.
//
// Agent keys follow one [Policy], fixed at construction. The
// deterministic policy opens the seed bundle in the device's identity
// [Descriptor] with the device password, derives the agent seed, and
// imports it into the key custodian, so the key is the same on every
// run. The ephemeral policy asks the conductor for a random key once
// and reuses it until it is regenerated; a new ephemeral key
// invalidates every cached proof.
//
// [ProofManager] returns membrane proofs: the read-only sentinel when
// configured read-only, else a cached proof, else one fetched from
// the credential service with a single retry on gateway timeouts.
//
// State lives in a [Store]: a directory of files, a SQLite database,
// or memory. Keys are "agent-key" and "membrane-proof/<identity>".
package credential
