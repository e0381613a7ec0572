// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/hostsync/lib/secret"
)

// DefaultWorkFactor is the scrypt log2(N) used when the caller passes
// zero. age's own default.
const DefaultWorkFactor = 18

// ErrWrongPassphrase is returned by Open when the passphrase does not
// unlock the ciphertext.
var ErrWrongPassphrase = errors.New("sealed: incorrect passphrase")

// Seal encrypts plaintext to passphrase. workFactor is the scrypt
// log2(N); zero selects DefaultWorkFactor. Tests pass a small value to
// keep key derivation fast.
func Seal(plaintext []byte, passphrase *secret.Buffer, workFactor int) ([]byte, error) {
	if passphrase == nil {
		return nil, fmt.Errorf("sealed: passphrase is required")
	}
	if workFactor == 0 {
		workFactor = DefaultWorkFactor
	}

	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal. The plaintext is returned
// in protected memory; the caller must Close it.
func Open(ciphertext []byte, passphrase *secret.Buffer) (*secret.Buffer, error) {
	if passphrase == nil {
		return nil, fmt.Errorf("sealed: passphrase is required")
	}

	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: creating scrypt identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed: ciphertext holds an empty secret")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: protecting plaintext: %w", err)
	}
	return buffer, nil
}
