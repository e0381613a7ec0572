// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// SignedPayload is a request body for an external service, signed
// under the same nonce and timestamp discipline as zome calls.
type SignedPayload struct {
	Agent hashes.AgentPubKey `cbor:"agent"`
	Nonce Nonce              `cbor:"nonce"`
	// Timestamp is microseconds since the Unix epoch.
	Timestamp int64            `cbor:"timestamp"`
	Payload   codec.RawMessage `cbor:"payload"`
	Signature []byte           `cbor:"signature"`
}

// signedFields is the portion of SignedPayload the signature covers.
type signedFields struct {
	Agent     hashes.AgentPubKey `cbor:"agent"`
	Nonce     Nonce              `cbor:"nonce"`
	Timestamp int64              `cbor:"timestamp"`
	Payload   codec.RawMessage   `cbor:"payload"`
}

func (p *SignedPayload) signedBytes() ([]byte, error) {
	return codec.Marshal(signedFields{
		Agent:     p.Agent,
		Nonce:     p.Nonce,
		Timestamp: p.Timestamp,
		Payload:   p.Payload,
	})
}

// SignPayload CBOR-encodes payload and signs it as agent.
func (s *Signer) SignPayload(ctx context.Context, agent hashes.AgentPubKey, payload any) (*SignedPayload, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	nonce, err := NewNonce(s.random)
	if err != nil {
		return nil, err
	}
	signed := &SignedPayload{
		Agent:     agent,
		Nonce:     nonce,
		Timestamp: s.clock.Now().UnixMicro(),
		Payload:   encoded,
	}
	data, err := signed.signedBytes()
	if err != nil {
		return nil, fmt.Errorf("encoding signed payload: %w", err)
	}
	signed.Signature, err = s.custodian.Sign(ctx, agent, Digest(data))
	if err != nil {
		return nil, &SigningError{Agent: agent.String(), Err: err}
	}
	return signed, nil
}

// VerifyPayload checks the signature on a signed payload.
func VerifyPayload(signed *SignedPayload) error {
	data, err := signed.signedBytes()
	if err != nil {
		return fmt.Errorf("encoding signed payload: %w", err)
	}
	return VerifyBytes(signed.Agent, data, signed.Signature)
}
