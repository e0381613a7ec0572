// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hashes defines the conductor's typed hashes: agent public
// keys, DNA hashes, action hashes, and the cell id pairing a DNA with
// an agent.
//
// Every hash is 39 bytes: a 3-byte type prefix, a 32-byte core and a
// 4-byte location. The display form is "u" followed by unpadded
// base64url, so every agent key prints as "uhCAk..." and every DNA
// hash as "uhC0k...".
package hashes

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/zeebo/blake3"
)

// Length of every typed hash, and of its core.
const (
	Length     = 39
	CoreLength = 32
)

// Type prefixes.
var (
	agentPrefix  = []byte{0x84, 0x20, 0x24}
	dnaPrefix    = []byte{0x84, 0x2d, 0x24}
	actionPrefix = []byte{0x84, 0x29, 0x24}
)

// AgentPubKey is an agent's ed25519 public key in typed-hash form.
type AgentPubKey []byte

// DnaHash identifies a DNA.
type DnaHash []byte

// ActionHash identifies a source chain action.
type ActionHash []byte

// CellID is a DNA run by an agent. It encodes as a two-element array.
type CellID struct {
	_           struct{} `cbor:",toarray"`
	DnaHash     DnaHash
	AgentPubKey AgentPubKey
}

// NewAgentPubKey wraps a raw ed25519 public key.
func NewAgentPubKey(key ed25519.PublicKey) AgentPubKey {
	return AgentPubKey(compose(agentPrefix, key))
}

// NewDnaHash wraps a 32-byte DNA digest.
func NewDnaHash(core []byte) DnaHash {
	return DnaHash(compose(dnaPrefix, core))
}

// NewActionHash wraps a 32-byte action digest.
func NewActionHash(core []byte) ActionHash {
	return ActionHash(compose(actionPrefix, core))
}

func compose(prefix, core []byte) []byte {
	out := make([]byte, 0, Length)
	out = append(out, prefix...)
	out = append(out, core...)
	return append(out, location(core)...)
}

// location folds a BLAKE3 digest of the core into 4 bytes.
func location(core []byte) []byte {
	digest := blake3.Sum256(core)
	out := make([]byte, 4)
	for index, b := range digest {
		out[index%4] ^= b
	}
	return out
}

// Ed25519 returns the raw public key, or nil when k is not a
// well-formed agent key.
func (k AgentPubKey) Ed25519() ed25519.PublicKey {
	if err := k.Validate(); err != nil {
		return nil
	}
	return ed25519.PublicKey(k[3 : 3+CoreLength])
}

// Validate checks the length, prefix and location bytes.
func (k AgentPubKey) Validate() error { return validate("agent key", agentPrefix, k) }

// Validate checks the length, prefix and location bytes.
func (h DnaHash) Validate() error { return validate("dna hash", dnaPrefix, h) }

// Validate checks the length, prefix and location bytes.
func (h ActionHash) Validate() error { return validate("action hash", actionPrefix, h) }

func validate(kind string, prefix, data []byte) error {
	if len(data) != Length {
		return fmt.Errorf("%s: length %d, want %d", kind, len(data), Length)
	}
	if !bytes.Equal(data[:3], prefix) {
		return fmt.Errorf("%s: wrong type prefix %x", kind, data[:3])
	}
	if !bytes.Equal(data[Length-4:], location(data[3:3+CoreLength])) {
		return fmt.Errorf("%s: location bytes do not match", kind)
	}
	return nil
}

func (k AgentPubKey) String() string { return encode(k) }
func (h DnaHash) String() string     { return encode(h) }
func (h ActionHash) String() string  { return encode(h) }

// Equal reports byte equality.
func (k AgentPubKey) Equal(other AgentPubKey) bool { return bytes.Equal(k, other) }

// String prints the cell as "<dna>:<agent>".
func (c CellID) String() string {
	return c.DnaHash.String() + ":" + c.AgentPubKey.String()
}

func encode(data []byte) string {
	return "u" + base64.RawURLEncoding.EncodeToString(data)
}

// ParseAgentPubKey parses the "u"-prefixed display form.
func ParseAgentPubKey(text string) (AgentPubKey, error) {
	data, err := decode(text)
	if err != nil {
		return nil, err
	}
	key := AgentPubKey(data)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseActionHash parses the "u"-prefixed display form.
func ParseActionHash(text string) (ActionHash, error) {
	data, err := decode(text)
	if err != nil {
		return nil, err
	}
	hash := ActionHash(data)
	if err := hash.Validate(); err != nil {
		return nil, err
	}
	return hash, nil
}

func decode(text string) ([]byte, error) {
	if len(text) < 2 || text[0] != 'u' {
		return nil, fmt.Errorf("hash %q: missing 'u' prefix", text)
	}
	data, err := base64.RawURLEncoding.DecodeString(text[1:])
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", text, err)
	}
	return data, nil
}
