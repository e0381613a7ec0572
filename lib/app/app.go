// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// BundleExtension is the file extension of an app bundle.
const BundleExtension = ".happ"

// Spec is one entry of the desired app set.
type Spec struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Tag     string `yaml:"tag,omitempty" json:"tag,omitempty"`

	// Sources lists where the bundle can be read from, tried in order.
	Sources []Source `yaml:"sources" json:"sources"`

	// Roles carries per-role property overrides. Roles not listed are
	// installed with the bundle's defaults.
	Roles []RoleSpec `yaml:"roles,omitempty" json:"roles,omitempty"`

	// Identity, when set, makes the app fetch its membrane proofs for
	// this identity instead of the device identity.
	Identity *IdentityOverride `yaml:"identity,omitempty" json:"identity,omitempty"`

	// UI is an optional UI archive location handed to the UI installer.
	UI string `yaml:"ui,omitempty" json:"ui,omitempty"`

	// Privileged apps are reconciled before hosted apps. The
	// desired-state loader sets it from the section the app appears in.
	Privileged bool `yaml:"-" json:"-"`
}

// Source is a bundle location: a local path or an http(s) URL.
type Source struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
}

// RoleSpec overrides settings of one role.
type RoleSpec struct {
	Name       string         `yaml:"name" json:"name"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// IdentityOverride is an alternative registration identity.
type IdentityOverride struct {
	Email            string `yaml:"email" json:"email"`
	RegistrationCode string `yaml:"registration_code" json:"registration_code"`
}

// ID returns the installed app id. A non-empty namespace is appended
// as "::<namespace>".
func (s Spec) ID(namespace string) string {
	id := s.Name + ":" + s.Version
	if s.Tag != "" {
		id += ":" + s.Tag
	}
	if namespace != "" {
		id += "::" + namespace
	}
	return id
}

// RoleNames returns the names of the roles with explicit settings.
func (s Spec) RoleNames() []string {
	names := make([]string, len(s.Roles))
	for index, role := range s.Roles {
		names[index] = role.Name
	}
	return names
}

// InstallRoles returns the roles an install provisions: the roles
// with explicit settings, or a single role named after the app when
// there are none.
func (s Spec) InstallRoles() []string {
	if len(s.Roles) == 0 {
		return []string{s.Name}
	}
	return s.RoleNames()
}

// Properties returns the property overrides for role, or nil.
func (s Spec) Properties(role string) map[string]any {
	for _, candidate := range s.Roles {
		if candidate.Name == role {
			return candidate.Properties
		}
	}
	return nil
}

// Validate checks a spec loaded from a desired-state file.
func (s Spec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.Contains(s.Name, ":") {
		errs = append(errs, fmt.Errorf("name %q must not contain ':'", s.Name))
	}
	if s.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if strings.Contains(s.Version, ":") || strings.Contains(s.Tag, ":") {
		errs = append(errs, errors.New("version and tag must not contain ':'"))
	}
	if len(s.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	for index, source := range s.Sources {
		if (source.Path == "") == (source.URL == "") {
			errs = append(errs, fmt.Errorf("sources[%d]: exactly one of path or url is required", index))
		}
	}
	seen := make(map[string]bool, len(s.Roles))
	for index, role := range s.Roles {
		if role.Name == "" {
			errs = append(errs, fmt.Errorf("roles[%d]: name is required", index))
		} else if seen[role.Name] {
			errs = append(errs, fmt.Errorf("roles[%d]: duplicate role %q", index, role.Name))
		}
		seen[role.Name] = true
	}
	if s.Identity != nil && (s.Identity.Email == "" || s.Identity.RegistrationCode == "") {
		errs = append(errs, errors.New("identity override needs email and registration_code"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app %q: %w", s.Name, err)
	}
	return nil
}

// ParseBundleName splits a bundle file name of the form
// "<name>.<version>[.<tag>].happ" into a spec carrying those fields.
// Any directory prefix is ignored.
func ParseBundleName(filename string) (Spec, error) {
	base := path.Base(filename)
	stem, found := strings.CutSuffix(base, BundleExtension)
	if !found {
		return Spec{}, fmt.Errorf("bundle %q: missing %s extension", base, BundleExtension)
	}
	parts := strings.Split(stem, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Spec{}, fmt.Errorf("bundle %q: want <name>.<version>[.<tag>]%s", base, BundleExtension)
	}
	for _, part := range parts {
		if part == "" {
			return Spec{}, fmt.Errorf("bundle %q: empty name component", base)
		}
	}
	spec := Spec{Name: parts[0], Version: parts[1]}
	if len(parts) == 3 {
		spec.Tag = parts[2]
	}
	return spec, nil
}

// ContainsAny reports whether id contains any of the substrings.
// It returns the first match.
func ContainsAny(id string, substrings []string) (string, bool) {
	for _, substring := range substrings {
		if substring != "" && strings.Contains(id, substring) {
			return substring, true
		}
	}
	return "", false
}

// HasAnyPrefix reports whether id starts with any of the prefixes.
func HasAnyPrefix(id string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}
