// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"fmt"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// Action names.
const (
	ActionSign       = "sign"
	ActionImportSeed = "import_seed"
	ActionNewKey     = "new_key"
	ActionListKeys   = "list_keys"
)

// Response is the envelope of every socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

type signRequest struct {
	Action string             `cbor:"action"`
	Agent  hashes.AgentPubKey `cbor:"agent"`
	Data   []byte             `cbor:"data"`
}

type signResponse struct {
	Signature []byte `cbor:"signature"`
}

type importSeedRequest struct {
	Action string `cbor:"action"`
	Seed   []byte `cbor:"seed"`
}

type keyResponse struct {
	Agent hashes.AgentPubKey `cbor:"agent"`
}

type listKeysResponse struct {
	Agents []hashes.AgentPubKey `cbor:"agents"`
}

// Error is returned by Client when the custodian answers ok=false.
type Error struct {
	Action  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("keystore error on %q: %s", e.Action, e.Message)
}
