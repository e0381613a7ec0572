// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore is the key custodian: the only component that
// holds agent private keys.
//
// The custodian runs as its own process (cmd/hostsync-keystore) and
// serves a CBOR request/response protocol on a Unix socket. Each
// connection carries one request {action, ...} and one response
// {ok, error, data}. Actions:
//
//   - sign: sign data with the key for an agent
//   - import_seed: derive an ed25519 key from a 32-byte seed and keep it
//   - new_key: generate a random key and keep it
//   - list_keys: list the agent keys held
//
// [Client] is the hostsync side; it satisfies signing.Custodian.
// [Keyring] holds keys in memory and, with a [Vault], persists their
// seeds sealed under an age passphrase so they survive restarts.
package keystore
