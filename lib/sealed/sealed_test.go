// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/hostsync/lib/secret"
)

// testWorkFactor keeps scrypt cheap in tests.
const testWorkFactor = 10

func passphrase(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating passphrase buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestSealOpenRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	ciphertext, err := Seal(seed, passphrase(t, "unlock"), testWorkFactor)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(ciphertext, seed) {
		t.Fatal("ciphertext contains the plaintext seed")
	}

	opened, err := Open(ciphertext, passphrase(t, "unlock"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opened.Close()
	if !opened.Equal(seed) {
		t.Error("opened seed differs from sealed seed")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	ciphertext, err := Seal([]byte("seed"), passphrase(t, "right"), testWorkFactor)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	_, err = Open(ciphertext, passphrase(t, "wrong"))
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Open with wrong passphrase: err = %v, want ErrWrongPassphrase", err)
	}
}

func TestSealRequiresPassphrase(t *testing.T) {
	if _, err := Seal([]byte("seed"), nil, testWorkFactor); err == nil {
		t.Error("Seal(nil passphrase) succeeded")
	}
	if _, err := Open([]byte("x"), nil); err == nil {
		t.Error("Open(nil passphrase) succeeded")
	}
}
