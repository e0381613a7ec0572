// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides hostsync's single CBOR configuration.
//
// Every binary protocol hostsync speaks is CBOR: conductor admin and
// app websocket frames, the key custodian socket, the checkpoint
// service request envelopes and record batches, and the seed bundle
// file. JSON is reserved for human-facing surfaces (the identity
// descriptor, the credential service, CLI --json output).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). This
// matters beyond tidiness: the bytes of an unsigned zome call are
// hashed and signed, and the conductor re-encodes the same value to
// verify the signature. Any nondeterminism in map ordering or integer
// width would make valid signatures fail.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use (Unix sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Struct tags follow one rule: `cbor` tags for types that only ever
// cross a binary protocol, `json` tags for types that also appear in
// JSON (fxamacker/cbor falls back to json tags). Never both.
package codec
