// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/hostsync/lib/clock"
	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// CallExpiry is how long a signed call envelope stays valid.
const CallExpiry = 5 * time.Minute

// NonceSize is the nonce length in bytes.
const NonceSize = 32

// Nonce is a single-use random value.
type Nonce [NonceSize]byte

// Custodian holds private keys and signs on request.
type Custodian interface {
	// Sign signs data with the private key matching agent.
	Sign(ctx context.Context, agent hashes.AgentPubKey, data []byte) ([]byte, error)
}

// UnsignedCall is the signed portion of a zome call.
type UnsignedCall struct {
	Provenance hashes.AgentPubKey `cbor:"provenance"`
	CellID     hashes.CellID      `cbor:"cell_id"`
	Zome       string             `cbor:"zome_name"`
	Function   string             `cbor:"fn_name"`
	Payload    codec.RawMessage   `cbor:"payload"`
	Nonce      Nonce              `cbor:"nonce"`
	// ExpiresAt is microseconds since the Unix epoch.
	ExpiresAt int64 `cbor:"expires_at"`
}

// Envelope is an unsigned call, its canonical encoding, and the
// signature over that encoding's digest.
type Envelope struct {
	Call      UnsignedCall
	Bytes     []byte
	Signature []byte
}

// Config configures a Signer.
type Config struct {
	Custodian Custodian

	// Clock supplies expiry and timestamps. Defaults to clock.Real().
	Clock clock.Clock

	// Random supplies nonces. Defaults to crypto/rand.Reader.
	Random io.Reader

	Logger *slog.Logger
}

// Signer produces envelopes and signed payloads.
type Signer struct {
	custodian Custodian
	clock     clock.Clock
	random    io.Reader
	logger    *slog.Logger
}

// New returns a Signer. Custodian is required.
func New(config Config) *Signer {
	if config.Custodian == nil {
		panic("signing: Config.Custodian is required")
	}
	signer := &Signer{
		custodian: config.Custodian,
		clock:     config.Clock,
		random:    config.Random,
		logger:    config.Logger,
	}
	if signer.clock == nil {
		signer.clock = clock.Real()
	}
	if signer.random == nil {
		signer.random = rand.Reader
	}
	if signer.logger == nil {
		signer.logger = slog.New(slog.DiscardHandler)
	}
	return signer
}

// NewNonce reads a nonce from random.
func NewNonce(random io.Reader) (Nonce, error) {
	var nonce Nonce
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return Nonce{}, &NonceError{Err: err}
	}
	return nonce, nil
}

// Digest returns the BLAKE3-256 digest signatures are computed over.
func Digest(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// SignCall builds and signs a call to zome/function on cell. The
// provenance is the cell's agent. payload is CBOR-encoded before
// signing.
func (s *Signer) SignCall(ctx context.Context, cell hashes.CellID, zome, function string, payload any) (*Envelope, error) {
	encodedPayload, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s/%s: %w", zome, function, err)
	}
	nonce, err := NewNonce(s.random)
	if err != nil {
		return nil, err
	}
	call := UnsignedCall{
		Provenance: cell.AgentPubKey,
		CellID:     cell,
		Zome:       zome,
		Function:   function,
		Payload:    encodedPayload,
		Nonce:      nonce,
		ExpiresAt:  s.clock.Now().Add(CallExpiry).UnixMicro(),
	}
	data, err := codec.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encoding call %s/%s: %w", zome, function, err)
	}
	signature, err := s.custodian.Sign(ctx, call.Provenance, Digest(data))
	if err != nil {
		return nil, &SigningError{Agent: call.Provenance.String(), Err: err}
	}
	s.logger.Debug("signed zome call",
		"zome", zome,
		"function", function,
		"cell", cell.String(),
	)
	return &Envelope{Call: call, Bytes: data, Signature: signature}, nil
}

// Verify checks an envelope's signature against its provenance key
// and that Bytes is the encoding of Call.
func Verify(envelope *Envelope) error {
	var decoded UnsignedCall
	if err := codec.Unmarshal(envelope.Bytes, &decoded); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if !decoded.Provenance.Equal(envelope.Call.Provenance) || decoded.Nonce != envelope.Call.Nonce {
		return fmt.Errorf("envelope bytes do not match call")
	}
	return VerifyBytes(decoded.Provenance, envelope.Bytes, envelope.Signature)
}

// VerifyBytes checks signature over the digest of data for agent.
func VerifyBytes(agent hashes.AgentPubKey, data, signature []byte) error {
	public := agent.Ed25519()
	if public == nil {
		return fmt.Errorf("verifying: malformed agent key")
	}
	if !ed25519.Verify(public, Digest(data), signature) {
		return ErrBadSignature
	}
	return nil
}
