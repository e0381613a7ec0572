// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package desired loads the desired app set from a YAML or
// JSON-with-comments file:
//
//	privileged:
//	  - name: core-app
//	    version: "2"
//	    sources: [{path: /var/lib/hostsync/core-app.2.happ}]
//	hosted:
//	  - sources: [{url: https://example.com/chat.1.0002.happ}]
//
// An entry without a name takes name, version and tag from the bundle
// file name of its first source. Privileged apps come first in the
// returned slice, and are marked [app.Spec].Privileged.
package desired

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/hostsync/lib/app"
)

// File is the on-disk shape of a desired-state file.
type File struct {
	Privileged []app.Spec `yaml:"privileged" json:"privileged"`
	Hosted     []app.Spec `yaml:"hosted" json:"hosted"`
}

// Load reads the desired-state file at path. Files ending in .json or
// .jsonc are parsed as JSON with comments; anything else as YAML.
func Load(path string) ([]app.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading desired state: %w", err)
	}
	var file File
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing desired state %s: %w", path, err)
	}
	specs, err := file.Specs()
	if err != nil {
		return nil, fmt.Errorf("desired state %s: %w", path, err)
	}
	return specs, nil
}

// Specs flattens the file into reconciliation order, filling names
// from bundle file names and validating every entry. A duplicate app
// id is an error.
func (f File) Specs() ([]app.Spec, error) {
	specs := make([]app.Spec, 0, len(f.Privileged)+len(f.Hosted))
	var errs []error
	seen := make(map[string]bool)

	add := func(spec app.Spec, privileged bool) {
		spec.Privileged = privileged
		if spec.Name == "" {
			inferred, err := inferFromSource(spec)
			if err != nil {
				errs = append(errs, err)
				return
			}
			spec.Name, spec.Version, spec.Tag = inferred.Name, inferred.Version, inferred.Tag
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, err)
			return
		}
		id := spec.ID("")
		if seen[id] {
			errs = append(errs, fmt.Errorf("app %s listed twice", id))
			return
		}
		seen[id] = true
		specs = append(specs, spec)
	}
	for _, spec := range f.Privileged {
		add(spec, true)
	}
	for _, spec := range f.Hosted {
		add(spec, false)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return specs, nil
}

func inferFromSource(spec app.Spec) (app.Spec, error) {
	if len(spec.Sources) == 0 {
		return app.Spec{}, errors.New("app without name or sources")
	}
	source := spec.Sources[0]
	location := source.Path
	if source.URL != "" {
		parsed, err := url.Parse(source.URL)
		if err != nil {
			return app.Spec{}, fmt.Errorf("source url %q: %w", source.URL, err)
		}
		location = parsed.Path
	}
	return app.ParseBundleName(location)
}
