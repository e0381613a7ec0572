// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// seedBundleVersion is the only bundle format understood.
const seedBundleVersion = 1

// MasterSeedSize is the size of the seed a bundle protects.
const MasterSeedSize = 32

// agentSeedInfo is the HKDF info string for the agent seed.
const agentSeedInfo = "hostsync agent seed v1"

// ErrWrongPassword is returned when a seed bundle does not open with
// the given password.
var ErrWrongPassword = errors.New("credential: seed bundle password is incorrect")

// KDFParams are the argon2id parameters stored in a bundle.
type KDFParams struct {
	Time    uint32 `cbor:"time"`
	Memory  uint32 `cbor:"memory"`
	Threads uint8  `cbor:"threads"`
}

// DefaultKDFParams is argon2id with 3 passes over 64 MiB.
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// seedBundle is the CBOR form of a password-encrypted master seed.
type seedBundle struct {
	Version    int       `cbor:"version"`
	KDF        KDFParams `cbor:"kdf"`
	Salt       []byte    `cbor:"salt"`
	Nonce      []byte    `cbor:"nonce"`
	Ciphertext []byte    `cbor:"ciphertext"`
}

// SealSeedBundle encrypts a master seed under password.
func SealSeedBundle(master, password *secret.Buffer, params KDFParams) ([]byte, error) {
	if master.Len() != MasterSeedSize {
		return nil, fmt.Errorf("master seed must be %d bytes, got %d", MasterSeedSize, master.Len())
	}
	bundle := seedBundle{
		Version: seedBundleVersion,
		KDF:     params,
		Salt:    make([]byte, 16),
		Nonce:   make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := io.ReadFull(rand.Reader, bundle.Salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, bundle.Nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	key := deriveBundleKey(password, bundle.Salt, params)
	defer secret.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	bundle.Ciphertext = aead.Seal(nil, bundle.Nonce, master.Bytes(), bundleAD(bundle))
	return codec.Marshal(bundle)
}

// OpenSeedBundle decrypts a bundle. The caller closes the returned
// master seed.
func OpenSeedBundle(data []byte, password *secret.Buffer) (*secret.Buffer, error) {
	var bundle seedBundle
	if err := codec.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decoding seed bundle: %w", err)
	}
	if bundle.Version != seedBundleVersion {
		return nil, fmt.Errorf("seed bundle version %d not supported", bundle.Version)
	}
	if bundle.KDF.Time == 0 || bundle.KDF.Memory == 0 || bundle.KDF.Threads == 0 {
		return nil, fmt.Errorf("seed bundle has invalid KDF parameters %+v", bundle.KDF)
	}

	key := deriveBundleKey(password, bundle.Salt, bundle.KDF)
	defer secret.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(bundle.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("seed bundle nonce is %d bytes", len(bundle.Nonce))
	}
	plaintext, err := aead.Open(nil, bundle.Nonce, bundle.Ciphertext, bundleAD(bundle))
	if err != nil {
		return nil, ErrWrongPassword
	}
	return secret.NewFromBytes(plaintext)
}

// DeriveAgentSeed derives the ed25519 seed of the agent key from a
// master seed with HKDF-SHA256.
func DeriveAgentSeed(master *secret.Buffer) (*secret.Buffer, error) {
	seed, err := secret.New(32)
	if err != nil {
		return nil, err
	}
	reader := hkdf.New(sha256.New, master.Bytes(), nil, []byte(agentSeedInfo))
	if _, err := io.ReadFull(reader, seed.Bytes()); err != nil {
		seed.Close()
		return nil, fmt.Errorf("deriving agent seed: %w", err)
	}
	return seed, nil
}

func deriveBundleKey(password *secret.Buffer, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(password.Bytes(), salt, params.Time, params.Memory, params.Threads, chacha20poly1305.KeySize)
}

// bundleAD binds the version and KDF parameters to the ciphertext.
func bundleAD(bundle seedBundle) []byte {
	return fmt.Appendf(nil, "hostsync-seed-bundle/%d/%d/%d/%d",
		bundle.Version, bundle.KDF.Time, bundle.KDF.Memory, bundle.KDF.Threads)
}
