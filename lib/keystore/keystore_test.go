// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/sealed"
	"github.com/bureau-foundation/hostsync/lib/secret"
	"github.com/bureau-foundation/hostsync/lib/signing"
	"github.com/bureau-foundation/hostsync/lib/testutil"
)

// testWorkFactor keeps scrypt fast in tests.
const testWorkFactor = 10

var _ signing.Custodian = (*Client)(nil)
var _ signing.Custodian = (*Keyring)(nil)

func startServer(t *testing.T, keyring *Keyring) *Client {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "keystore.sock")
	server := NewServer(socketPath, keyring, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Serve to return"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	waitForSocket(t, socketPath)
	return NewClient(socketPath)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	ready := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			if _, err := os.Stat(path); err == nil {
				close(ready)
				return
			}
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}()
	testutil.RequireClosed(t, ready, 5*time.Second, "waiting for socket %s", path)
}

func testPassphrase(t *testing.T) *secret.Buffer {
	t.Helper()
	passphrase, err := secret.NewFromBytes([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("passphrase: %v", err)
	}
	t.Cleanup(func() { passphrase.Close() })
	return passphrase
}

func TestClientSignAndVerify(t *testing.T) {
	keyring, err := NewKeyring(nil)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	client := startServer(t, keyring)
	ctx := context.Background()

	agent, err := client.NewKey(ctx)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	data := signing.Digest([]byte("call bytes"))
	signature, err := client.Sign(ctx, agent, data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(agent.Ed25519(), data, signature) {
		t.Error("signature does not verify")
	}

	keys, err := client.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || !keys[0].Equal(agent) {
		t.Errorf("ListKeys = %v, want [%s]", keys, agent)
	}
}

func TestClientImportSeedIsDeterministic(t *testing.T) {
	keyring, _ := NewKeyring(nil)
	client := startServer(t, keyring)
	ctx := context.Background()

	seedBytes := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	want := hashes.NewAgentPubKey(ed25519.NewKeyFromSeed(seedBytes).Public().(ed25519.PublicKey))

	for range 2 {
		seed, err := secret.NewFromBytes(bytes.Clone(seedBytes))
		if err != nil {
			t.Fatalf("secret: %v", err)
		}
		agent, err := client.ImportSeed(ctx, seed)
		seed.Close()
		if err != nil {
			t.Fatalf("ImportSeed: %v", err)
		}
		if !agent.Equal(want) {
			t.Errorf("agent = %s, want %s", agent, want)
		}
	}
	if keys := keyring.List(); len(keys) != 1 {
		t.Errorf("keyring holds %d keys, want 1", len(keys))
	}
}

func TestClientSignUnknownKey(t *testing.T) {
	keyring, _ := NewKeyring(nil)
	client := startServer(t, keyring)

	stranger := hashes.NewAgentPubKey(make([]byte, ed25519.PublicKeySize))
	_, err := client.Sign(context.Background(), stranger, []byte("data"))
	var keystoreErr *Error
	if !errors.As(err, &keystoreErr) {
		t.Fatalf("err = %v, want *keystore.Error", err)
	}
	if keystoreErr.Action != ActionSign {
		t.Errorf("Action = %q", keystoreErr.Action)
	}
}

func TestServerRejectsUnknownAction(t *testing.T) {
	keyring, _ := NewKeyring(nil)
	client := startServer(t, keyring)

	response, err := client.send(context.Background(), map[string]string{"action": "export_private_key"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if response.OK || response.Error != `unknown action "export_private_key"` {
		t.Errorf("response = %+v", response)
	}
}

func TestVaultPersistsSeedsAcrossRestart(t *testing.T) {
	directory := t.TempDir()
	passphrase := testPassphrase(t)

	first, err := NewKeyring(NewVault(directory, passphrase, testWorkFactor))
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	agent, err := first.NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	second, err := NewKeyring(NewVault(directory, passphrase, testWorkFactor))
	if err != nil {
		t.Fatalf("reopening keyring: %v", err)
	}
	keys := second.List()
	if len(keys) != 1 || !keys[0].Equal(agent) {
		t.Fatalf("reloaded keys = %v, want [%s]", keys, agent)
	}
	if _, err := second.Sign(context.Background(), agent, []byte("x")); err != nil {
		t.Errorf("Sign after reload: %v", err)
	}

	ciphertext, err := os.ReadFile(filepath.Join(directory, agent.String()+sealedSuffix))
	if err != nil {
		t.Fatalf("reading sealed seed: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, []byte("age-encryption.org/v1")) {
		t.Error("seed file is not an age file")
	}
}

func TestVaultWrongPassphrase(t *testing.T) {
	directory := t.TempDir()
	keyring, _ := NewKeyring(NewVault(directory, testPassphrase(t), testWorkFactor))
	if _, err := keyring.NewKey(); err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	wrong, err := secret.NewFromBytes([]byte("wrong"))
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	defer wrong.Close()
	_, err = NewKeyring(NewVault(directory, wrong, testWorkFactor))
	if !errors.Is(err, sealed.ErrWrongPassphrase) {
		t.Errorf("err = %v, want ErrWrongPassphrase", err)
	}
}

func TestImportSeedRejectsBadLength(t *testing.T) {
	keyring, _ := NewKeyring(nil)
	if _, err := keyring.ImportSeed([]byte("short")); err == nil {
		t.Error("short seed accepted")
	}
}
