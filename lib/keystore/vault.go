// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/sealed"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// sealedSuffix names sealed seed files: <agent>.age.
const sealedSuffix = ".age"

// Vault stores seeds sealed under one passphrase, one file per agent.
type Vault struct {
	directory  string
	passphrase *secret.Buffer
	workFactor int
}

// NewVault returns a vault over directory. The passphrase buffer is
// borrowed, not owned. workFactor <= 0 selects sealed.DefaultWorkFactor.
func NewVault(directory string, passphrase *secret.Buffer, workFactor int) *Vault {
	if workFactor <= 0 {
		workFactor = sealed.DefaultWorkFactor
	}
	return &Vault{directory: directory, passphrase: passphrase, workFactor: workFactor}
}

// Save seals seed into <agent>.age, replacing the file atomically.
func (v *Vault) Save(agent hashes.AgentPubKey, seed []byte) error {
	if err := os.MkdirAll(v.directory, 0o700); err != nil {
		return fmt.Errorf("creating seed directory: %w", err)
	}
	ciphertext, err := sealed.Seal(seed, v.passphrase, v.workFactor)
	if err != nil {
		return fmt.Errorf("sealing seed for %s: %w", agent, err)
	}
	path := filepath.Join(v.directory, agent.String()+sealedSuffix)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, ciphertext, 0o600); err != nil {
		return fmt.Errorf("writing sealed seed: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("installing sealed seed: %w", err)
	}
	return nil
}

// Load opens every sealed seed, sorted by file name. A missing
// directory is an empty vault. The caller closes the returned buffers.
func (v *Vault) Load() ([]*secret.Buffer, error) {
	entries, err := os.ReadDir(v.directory)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seed directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), sealedSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	seeds := make([]*secret.Buffer, 0, len(names))
	closeAll := func() {
		for _, seed := range seeds {
			seed.Close()
		}
	}
	for _, name := range names {
		ciphertext, err := os.ReadFile(filepath.Join(v.directory, name))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		seed, err := sealed.Open(ciphertext, v.passphrase)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
