// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// ErrUnknownKey is returned when asked to sign for a key the keyring
// does not hold.
var ErrUnknownKey = errors.New("keystore: no private key for agent")

// Keyring holds ed25519 private keys indexed by agent key. With a
// vault, every imported or generated seed is sealed to disk before
// the key becomes usable.
type Keyring struct {
	mu     sync.Mutex
	keys   map[string]ed25519.PrivateKey
	order  []hashes.AgentPubKey
	vault  *Vault
	random io.Reader
}

// NewKeyring returns a keyring, loading every seed from vault when
// vault is non-nil.
func NewKeyring(vault *Vault) (*Keyring, error) {
	keyring := &Keyring{
		keys:   make(map[string]ed25519.PrivateKey),
		vault:  vault,
		random: rand.Reader,
	}
	if vault == nil {
		return keyring, nil
	}
	seeds, err := vault.Load()
	if err != nil {
		return nil, err
	}
	for _, seed := range seeds {
		keyring.add(ed25519.NewKeyFromSeed(seed.Bytes()))
		seed.Close()
	}
	return keyring, nil
}

// Sign signs data as agent.
func (k *Keyring) Sign(_ context.Context, agent hashes.AgentPubKey, data []byte) ([]byte, error) {
	k.mu.Lock()
	private, ok := k.keys[string(agent)]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownKey, agent)
	}
	return ed25519.Sign(private, data), nil
}

// ImportSeed derives the key for a 32-byte seed. Importing the same
// seed twice returns the same agent key.
func (k *Keyring) ImportSeed(seed []byte) (hashes.AgentPubKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	agent := hashes.NewAgentPubKey(private.Public().(ed25519.PublicKey))

	k.mu.Lock()
	_, known := k.keys[string(agent)]
	k.mu.Unlock()
	if known {
		return agent, nil
	}
	if k.vault != nil {
		if err := k.vault.Save(agent, seed); err != nil {
			return nil, err
		}
	}
	return k.add(private), nil
}

// NewKey generates a random key.
func (k *Keyring) NewKey() (hashes.AgentPubKey, error) {
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	defer seed.Close()
	if _, err := io.ReadFull(k.random, seed.Bytes()); err != nil {
		return nil, fmt.Errorf("generating seed: %w", err)
	}
	return k.ImportSeed(seed.Bytes())
}

// List returns held keys in the order they were added.
func (k *Keyring) List() []hashes.AgentPubKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]hashes.AgentPubKey(nil), k.order...)
}

func (k *Keyring) add(private ed25519.PrivateKey) hashes.AgentPubKey {
	agent := hashes.NewAgentPubKey(private.Public().(ed25519.PublicKey))
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[string(agent)]; !exists {
		k.keys[string(agent)] = private
		k.order = append(k.order, agent)
	}
	return agent
}
