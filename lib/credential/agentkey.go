// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// Policy selects how the agent key is obtained.
type Policy string

const (
	// PolicyDeterministic derives the key from the identity's seed
	// bundle: the same key on every run.
	PolicyDeterministic Policy = "deterministic"

	// PolicyEphemeral uses a random conductor-generated key, kept
	// until explicitly regenerated.
	PolicyEphemeral Policy = "ephemeral"
)

// ParsePolicy parses a configured policy name.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case PolicyDeterministic, PolicyEphemeral:
		return Policy(name), nil
	case "":
		return PolicyDeterministic, nil
	}
	return "", fmt.Errorf("unknown agent key policy %q", name)
}

// Provenance records where an agent key came from.
type Provenance string

const (
	ProvenanceDerived   Provenance = "derived-from-seed"
	ProvenanceEphemeral Provenance = "ephemeral-random"
)

// AgentKey is the host's agent key.
type AgentKey struct {
	Key        hashes.AgentPubKey
	Provenance Provenance
}

// SeedImporter is the custodian side of the deterministic policy.
type SeedImporter interface {
	ImportSeed(ctx context.Context, seed *secret.Buffer) (hashes.AgentPubKey, error)
}

// KeyGenerator is the conductor side of the ephemeral policy.
type KeyGenerator interface {
	GenerateAgentKey(ctx context.Context) (hashes.AgentPubKey, error)
}

// AgentKeysConfig configures AgentKeys.
type AgentKeysConfig struct {
	Policy Policy
	Store  Store

	// Importer and Descriptor and Password serve the deterministic
	// policy. Password is borrowed, not owned.
	Importer   SeedImporter
	Descriptor *Descriptor
	Password   *secret.Buffer

	// Generator serves the ephemeral policy.
	Generator KeyGenerator

	Logger *slog.Logger
}

// AgentKeys resolves the agent key under one policy.
type AgentKeys struct {
	config AgentKeysConfig
	logger *slog.Logger
}

// NewAgentKeys validates config for its policy.
func NewAgentKeys(config AgentKeysConfig) (*AgentKeys, error) {
	if config.Store == nil {
		return nil, errors.New("agent keys: Store is required")
	}
	switch config.Policy {
	case PolicyDeterministic:
		if config.Importer == nil || config.Descriptor == nil || config.Password == nil {
			return nil, errors.New("agent keys: deterministic policy needs Importer, Descriptor and Password")
		}
	case PolicyEphemeral:
		if config.Generator == nil {
			return nil, errors.New("agent keys: ephemeral policy needs Generator")
		}
	default:
		return nil, fmt.Errorf("agent keys: unknown policy %q", config.Policy)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AgentKeys{config: config, logger: logger}, nil
}

// Policy returns the policy in force.
func (a *AgentKeys) Policy() Policy { return a.config.Policy }

// Get returns the agent key, creating it when needed.
func (a *AgentKeys) Get(ctx context.Context) (*AgentKey, error) {
	if a.config.Policy == PolicyDeterministic {
		return a.derive(ctx)
	}

	stored, err := a.config.Store.Get(ctx, agentKeyKey)
	switch {
	case err == nil:
		key := hashes.AgentPubKey(stored)
		if validateErr := key.Validate(); validateErr == nil {
			return &AgentKey{Key: key, Provenance: ProvenanceEphemeral}, nil
		} else {
			a.logger.Warn("stored agent key is malformed, generating a new one", "error", validateErr)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("reading stored agent key: %w", err)
	}
	return a.generate(ctx)
}

// Regenerate replaces the agent key. Under the deterministic policy
// the same key is derived again; under the ephemeral policy a new
// random key is generated and every cached proof is dropped.
func (a *AgentKeys) Regenerate(ctx context.Context) (*AgentKey, error) {
	if a.config.Policy == PolicyDeterministic {
		return a.derive(ctx)
	}
	return a.generate(ctx)
}

func (a *AgentKeys) generate(ctx context.Context) (*AgentKey, error) {
	key, err := a.config.Generator.GenerateAgentKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("generating agent key: %w", err)
	}
	deleted, err := invalidateProofs(ctx, a.config.Store)
	if err != nil {
		return nil, err
	}
	if err := a.config.Store.Put(ctx, agentKeyKey, key); err != nil {
		return nil, fmt.Errorf("storing agent key: %w", err)
	}
	a.logger.Info("generated ephemeral agent key",
		"agent", key.String(),
		"invalidated_proofs", deleted,
	)
	return &AgentKey{Key: key, Provenance: ProvenanceEphemeral}, nil
}

func (a *AgentKeys) derive(ctx context.Context) (*AgentKey, error) {
	bundle, err := a.config.Descriptor.Bundle()
	if err != nil {
		return nil, err
	}
	master, err := OpenSeedBundle(bundle, a.config.Password)
	if err != nil {
		return nil, fmt.Errorf("opening seed bundle: %w", err)
	}
	defer master.Close()
	seed, err := DeriveAgentSeed(master)
	if err != nil {
		return nil, err
	}
	defer seed.Close()

	key, err := a.config.Importer.ImportSeed(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("importing agent seed into keystore: %w", err)
	}

	stored, err := a.config.Store.Get(ctx, agentKeyKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reading stored agent key: %w", err)
	}
	if !bytes.Equal(stored, key) {
		if stored != nil {
			if _, err := invalidateProofs(ctx, a.config.Store); err != nil {
				return nil, err
			}
		}
		if err := a.config.Store.Put(ctx, agentKeyKey, key); err != nil {
			return nil, fmt.Errorf("storing agent key: %w", err)
		}
		a.logger.Info("derived agent key", "agent", key.String())
	}
	return &AgentKey{Key: key, Provenance: ProvenanceDerived}, nil
}

// invalidateProofs deletes every cached membrane proof.
func invalidateProofs(ctx context.Context, store Store) (int, error) {
	keys, err := store.List(ctx, proofKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing cached proofs: %w", err)
	}
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return 0, fmt.Errorf("invalidating cached proof: %w", err)
		}
	}
	return len(keys), nil
}
