// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// fakeCustodian holds imported and generated keys in memory. It
// serves as SeedImporter, KeyGenerator and signing.Custodian.
type fakeCustodian struct {
	mu        sync.Mutex
	keys      map[string]ed25519.PrivateKey
	imports   int
	generated int
}

func newFakeCustodian() *fakeCustodian {
	return &fakeCustodian{keys: make(map[string]ed25519.PrivateKey)}
}

func (c *fakeCustodian) ImportSeed(_ context.Context, seed *secret.Buffer) (hashes.AgentPubKey, error) {
	private := ed25519.NewKeyFromSeed(seed.Bytes())
	agent := hashes.NewAgentPubKey(private.Public().(ed25519.PublicKey))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[string(agent)] = private
	c.imports++
	return agent, nil
}

func (c *fakeCustodian) GenerateAgentKey(context.Context) (hashes.AgentPubKey, error) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	agent := hashes.NewAgentPubKey(public)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[string(agent)] = private
	c.generated++
	return agent, nil
}

func (c *fakeCustodian) Sign(_ context.Context, agent hashes.AgentPubKey, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	private, ok := c.keys[string(agent)]
	if !ok {
		return nil, errors.New("unknown agent key")
	}
	return ed25519.Sign(private, data), nil
}

func (c *fakeCustodian) generatedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generated
}

func testDescriptor(t *testing.T, password *secret.Buffer) *Descriptor {
	t.Helper()
	bundle, err := SealSeedBundle(mustSecret(t, testMasterSeed()), password, testKDFParams)
	if err != nil {
		t.Fatalf("SealSeedBundle: %v", err)
	}
	return &Descriptor{
		Version:    DescriptorVersion,
		Identity:   Identity{Email: "host@example.org", RegistrationCode: "ABCD-1234"},
		SeedBundle: base64.StdEncoding.EncodeToString(bundle),
	}
}

func TestParsePolicy(t *testing.T) {
	for _, test := range []struct {
		input string
		want  Policy
		fails bool
	}{
		{"", PolicyDeterministic, false},
		{"deterministic", PolicyDeterministic, false},
		{"ephemeral", PolicyEphemeral, false},
		{"random", "", true},
	} {
		got, err := ParsePolicy(test.input)
		if (err != nil) != test.fails || got != test.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", test.input, got, err)
		}
	}
}

func TestDeterministicKeyStableAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	password := mustSecret(t, []byte("device password"))
	descriptor := testDescriptor(t, password)
	store := NewMemoryStore()

	var keys []hashes.AgentPubKey
	for range 2 {
		manager, err := NewAgentKeys(AgentKeysConfig{
			Policy:     PolicyDeterministic,
			Store:      store,
			Importer:   newFakeCustodian(),
			Descriptor: descriptor,
			Password:   password,
		})
		if err != nil {
			t.Fatalf("NewAgentKeys: %v", err)
		}
		key, err := manager.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if key.Provenance != ProvenanceDerived {
			t.Errorf("Provenance = %q, want %q", key.Provenance, ProvenanceDerived)
		}
		keys = append(keys, key.Key)
	}
	if !keys[0].Equal(keys[1]) {
		t.Errorf("deterministic key changed across restarts: %s != %s", keys[0], keys[1])
	}

	stored, err := store.Get(ctx, agentKeyKey)
	if err != nil {
		t.Fatalf("stored agent key: %v", err)
	}
	if !hashes.AgentPubKey(stored).Equal(keys[0]) {
		t.Error("persisted key differs from derived key")
	}
}

func TestDeterministicWrongPassword(t *testing.T) {
	descriptor := testDescriptor(t, mustSecret(t, []byte("device password")))
	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:     PolicyDeterministic,
		Store:      NewMemoryStore(),
		Importer:   newFakeCustodian(),
		Descriptor: descriptor,
		Password:   mustSecret(t, []byte("not the password")),
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	if _, err := manager.Get(context.Background()); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Get: got %v, want ErrWrongPassword", err)
	}
}

func TestDeterministicKeyChangeInvalidatesProofs(t *testing.T) {
	ctx := context.Background()
	password := mustSecret(t, []byte("device password"))
	store := NewMemoryStore()
	other, _, _ := ed25519.GenerateKey(nil)
	store.Put(ctx, agentKeyKey, hashes.NewAgentPubKey(other))
	store.Put(ctx, proofKeyPrefix+"host@example.org", []byte("cHJvb2Y="))

	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:     PolicyDeterministic,
		Store:      store,
		Importer:   newFakeCustodian(),
		Descriptor: testDescriptor(t, password),
		Password:   password,
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	if _, err := manager.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	proofs, _ := store.List(ctx, proofKeyPrefix)
	if len(proofs) != 0 {
		t.Errorf("proofs for the old key survived: %v", proofs)
	}
}

func TestEphemeralKeyReused(t *testing.T) {
	ctx := context.Background()
	custodian := newFakeCustodian()
	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:    PolicyEphemeral,
		Store:     NewMemoryStore(),
		Generator: custodian,
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}

	first, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !first.Key.Equal(second.Key) {
		t.Error("ephemeral key was not reused")
	}
	if first.Provenance != ProvenanceEphemeral {
		t.Errorf("Provenance = %q", first.Provenance)
	}
	if got := custodian.generatedCount(); got != 1 {
		t.Errorf("generated %d keys, want 1", got)
	}
}

func TestEphemeralRegenerateDeletesProofCache(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	custodian := newFakeCustodian()
	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:    PolicyEphemeral,
		Store:     store,
		Generator: custodian,
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	original, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	store.Put(ctx, proofKeyPrefix+"host@example.org", []byte("cHJvb2Y="))
	store.Put(ctx, proofKeyPrefix+"override@example.org", []byte("b3RoZXI="))
	store.Put(ctx, "unrelated", []byte("kept"))

	regenerated, err := manager.Regenerate(ctx)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if regenerated.Key.Equal(original.Key) {
		t.Error("Regenerate returned the old key")
	}
	if proofs, _ := store.List(ctx, proofKeyPrefix); len(proofs) != 0 {
		t.Errorf("proof cache not cleared: %v", proofs)
	}
	if _, err := store.Get(ctx, "unrelated"); err != nil {
		t.Errorf("unrelated key removed: %v", err)
	}

	again, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !again.Key.Equal(regenerated.Key) {
		t.Error("Get after Regenerate returned a different key")
	}
}

func TestEphemeralMalformedStoredKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, agentKeyKey, []byte("garbage"))
	custodian := newFakeCustodian()
	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:    PolicyEphemeral,
		Store:     store,
		Generator: custodian,
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	key, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := key.Key.Validate(); err != nil {
		t.Errorf("replacement key invalid: %v", err)
	}
	if got := custodian.generatedCount(); got != 1 {
		t.Errorf("generated %d keys, want 1", got)
	}
}

func TestNewAgentKeysRequiresPolicyInputs(t *testing.T) {
	store := NewMemoryStore()
	for _, config := range []AgentKeysConfig{
		{Policy: PolicyDeterministic, Store: store},
		{Policy: PolicyEphemeral, Store: store},
		{Policy: "other", Store: store},
		{Policy: PolicyEphemeral, Generator: newFakeCustodian()},
	} {
		if _, err := NewAgentKeys(config); err == nil {
			t.Errorf("NewAgentKeys(%+v) succeeded", config)
		}
	}
}

// failingDeleteStore is a MemoryStore whose Delete always fails.
type failingDeleteStore struct {
	*MemoryStore
}

func (s failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("disk error")
}

func TestRegenerateKeepsOldKeyWhenProofsCannotBeDropped(t *testing.T) {
	ctx := context.Background()
	store := failingDeleteStore{NewMemoryStore()}
	old, _, _ := ed25519.GenerateKey(nil)
	oldKey := hashes.NewAgentPubKey(old)
	store.Put(ctx, agentKeyKey, oldKey)
	store.Put(ctx, proofKeyPrefix+"host@example.org", []byte("cHJvb2Y="))

	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:    PolicyEphemeral,
		Store:     store,
		Generator: newFakeCustodian(),
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	if _, err := manager.Regenerate(ctx); err == nil {
		t.Fatal("Regenerate succeeded although proofs could not be dropped")
	}

	key, err := manager.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !key.Key.Equal(oldKey) {
		t.Errorf("persisted key changed to %s while the old key's proof is still cached", key.Key)
	}
}

func TestDeterministicKeyChangeKeepsOldKeyWhenProofsCannotBeDropped(t *testing.T) {
	ctx := context.Background()
	password := mustSecret(t, []byte("device password"))
	store := failingDeleteStore{NewMemoryStore()}
	old, _, _ := ed25519.GenerateKey(nil)
	oldKey := hashes.NewAgentPubKey(old)
	store.Put(ctx, agentKeyKey, oldKey)
	store.Put(ctx, proofKeyPrefix+"host@example.org", []byte("cHJvb2Y="))

	manager, err := NewAgentKeys(AgentKeysConfig{
		Policy:     PolicyDeterministic,
		Store:      store,
		Importer:   newFakeCustodian(),
		Descriptor: testDescriptor(t, password),
		Password:   password,
	})
	if err != nil {
		t.Fatalf("NewAgentKeys: %v", err)
	}
	if _, err := manager.Get(ctx); err == nil {
		t.Fatal("Get succeeded although proofs could not be dropped")
	}
	stored, err := store.Get(ctx, agentKeyKey)
	if err != nil {
		t.Fatalf("stored agent key: %v", err)
	}
	if !hashes.AgentPubKey(stored).Equal(oldKey) {
		t.Error("derived key was persisted before the old key's proofs were dropped")
	}
}
