// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// MembraneProof gates installation of a cell. It is opaque to hostsync.
type MembraneProof []byte

// ReadOnlySentinel is the proof used in read-only mode.
var ReadOnlySentinel = MembraneProof{0}

// IsReadOnly reports whether p is the read-only sentinel.
func (p MembraneProof) IsReadOnly() bool { return bytes.Equal(p, ReadOnlySentinel) }

// String returns the base64 form stored in the proof cache.
func (p MembraneProof) String() string { return base64.StdEncoding.EncodeToString(p) }

// ParseProof decodes the base64 text returned by the credential
// service and kept in the proof cache.
func ParseProof(text string) (MembraneProof, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty membrane proof")
	}
	proof, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decoding membrane proof: %w", err)
	}
	return proof, nil
}

// Registrar fetches membrane proofs. *RegistrationClient implements it.
type Registrar interface {
	Register(ctx context.Context, identity Identity, role string, agent hashes.AgentPubKey) (string, error)
}

// ProofsConfig configures a ProofManager.
type ProofsConfig struct {
	// ReadOnly returns ReadOnlySentinel for every role without touching
	// the store or the network. Store and Registrar may then be nil.
	ReadOnly bool

	Store     Store
	Registrar Registrar

	// Identity registers apps that carry no identity override.
	Identity Identity

	Logger *slog.Logger
}

// ProofManager resolves membrane proofs, caching them in the store.
type ProofManager struct {
	config ProofsConfig
	logger *slog.Logger
}

// NewProofManager validates config.
func NewProofManager(config ProofsConfig) (*ProofManager, error) {
	if !config.ReadOnly && (config.Store == nil || config.Registrar == nil) {
		return nil, errors.New("proof manager: Store and Registrar are required unless read-only")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProofManager{config: config, logger: logger}, nil
}

func proofKey(identity Identity) string {
	return proofKeyPrefix + identity.Key()
}

// GetProof returns the proof for identity and role. A cached proof is
// returned as is; proofs do not expire locally.
func (m *ProofManager) GetProof(ctx context.Context, identity Identity, role string, agent hashes.AgentPubKey) (MembraneProof, error) {
	if m.config.ReadOnly {
		return slices.Clone(ReadOnlySentinel), nil
	}

	key := proofKey(identity)
	cached, err := m.config.Store.Get(ctx, key)
	switch {
	case err == nil:
		proof, parseErr := ParseProof(string(cached))
		if parseErr == nil {
			m.logger.Debug("using cached membrane proof", "role", role)
			return proof, nil
		}
		m.logger.Warn("discarding unreadable cached membrane proof",
			"role", role,
			"error", parseErr,
		)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("reading cached membrane proof: %w", err)
	}

	text, err := m.config.Registrar.Register(ctx, identity, role, agent)
	if err != nil {
		return nil, err
	}
	if err := m.config.Store.Put(ctx, key, []byte(text)); err != nil {
		return nil, fmt.Errorf("caching membrane proof: %w", err)
	}
	m.logger.Info("fetched membrane proof", "role", role, "agent", agent.String())
	return ParseProof(text)
}

// ProofsForApp returns one proof per role of spec. A single proof is
// fetched and shared by every role. Apps with an identity override
// register under that identity instead of the device identity.
func (m *ProofManager) ProofsForApp(ctx context.Context, spec app.Spec, agent hashes.AgentPubKey) (map[string]MembraneProof, error) {
	roles := spec.InstallRoles()
	identity := m.config.Identity
	if spec.Identity != nil {
		identity = Identity{
			Email:            spec.Identity.Email,
			RegistrationCode: spec.Identity.RegistrationCode,
		}
	}

	proof, err := m.GetProof(ctx, identity, roles[0], agent)
	if err != nil {
		return nil, err
	}
	proofs := make(map[string]MembraneProof, len(roles))
	for _, role := range roles {
		proofs[role] = slices.Clone(proof)
	}
	return proofs, nil
}
