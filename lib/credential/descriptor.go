// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// DescriptorVersion is the only identity descriptor version accepted.
const DescriptorVersion = 2

// ConfigVersionError reports an identity descriptor of an unsupported
// version. It is fatal: the device must be re-provisioned.
type ConfigVersionError struct {
	Path    string
	Version int
}

func (e *ConfigVersionError) Error() string {
	return fmt.Sprintf("identity descriptor %s has version %d; only version %d is supported",
		e.Path, e.Version, DescriptorVersion)
}

// Identity is who a membrane proof is registered for.
type Identity struct {
	Email            string `json:"email"`
	RegistrationCode string `json:"registration_code"`
}

// Key is the identity's store key component.
func (i Identity) Key() string { return i.Email }

// Descriptor is the device identity file written at provisioning.
type Descriptor struct {
	Version int `json:"version"`
	Identity
	// SeedBundle is the base64 (standard encoding) password-encrypted
	// master seed.
	SeedBundle string `json:"seed_bundle"`
}

// LoadDescriptor reads a JSON (comments allowed) descriptor.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity descriptor: %w", err)
	}
	return ParseDescriptor(path, data)
}

// ParseDescriptor parses descriptor data; path is used in errors.
func ParseDescriptor(path string, data []byte) (*Descriptor, error) {
	var header struct {
		Version int `json:"version"`
	}
	cleaned := jsonc.ToJSON(data)
	if err := json.Unmarshal(cleaned, &header); err != nil {
		return nil, fmt.Errorf("parsing identity descriptor %s: %w", path, err)
	}
	if header.Version != DescriptorVersion {
		return nil, &ConfigVersionError{Path: path, Version: header.Version}
	}
	var descriptor Descriptor
	if err := json.Unmarshal(cleaned, &descriptor); err != nil {
		return nil, fmt.Errorf("parsing identity descriptor %s: %w", path, err)
	}
	if descriptor.Email == "" || descriptor.RegistrationCode == "" {
		return nil, fmt.Errorf("identity descriptor %s: email and registration_code are required", path)
	}
	return &descriptor, nil
}

// Bundle decodes the seed bundle.
func (d *Descriptor) Bundle() ([]byte, error) {
	if d.SeedBundle == "" {
		return nil, fmt.Errorf("identity descriptor has no seed_bundle")
	}
	data, err := base64.StdEncoding.DecodeString(d.SeedBundle)
	if err != nil {
		return nil, fmt.Errorf("decoding seed_bundle: %w", err)
	}
	return data, nil
}

// Marshal encodes the descriptor as indented JSON.
func (d *Descriptor) Marshal() ([]byte, error) {
	out := *d
	out.Version = DescriptorVersion
	return json.MarshalIndent(out, "", "  ")
}
