// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"regexp"

	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// This file is the only place the text of a divergence error is
// inspected.

// headMovedPattern matches the conductor's wording for a diverged
// source chain across versions.
var headMovedPattern = regexp.MustCompile(`(?i)head\s*moved|chain head has moved`)

// actionHashPattern matches the display form of an action hash.
var actionHashPattern = regexp.MustCompile(`uhCkk[A-Za-z0-9_-]{48}`)

// Divergence describes a source chain whose head moved.
type Divergence struct {
	// Heads are the action hashes named in the error, in order of
	// first appearance: the expected head, then the alternatives.
	Heads   []hashes.ActionHash
	Message string
}

// ParseDivergence reports whether err is a chain-head-moved
// divergence and extracts the head hashes it names.
func ParseDivergence(err error) (*Divergence, bool) {
	if err == nil {
		return nil, false
	}
	text := err.Error()
	if !conductor.IsChainHeadMoved(err) && !headMovedPattern.MatchString(text) {
		return nil, false
	}

	divergence := &Divergence{Message: text}
	seen := make(map[string]bool)
	for _, match := range actionHashPattern.FindAllString(text, -1) {
		if seen[match] {
			continue
		}
		seen[match] = true
		hash, parseErr := hashes.ParseActionHash(match)
		if parseErr != nil {
			continue
		}
		divergence.Heads = append(divergence.Heads, hash)
	}
	return divergence, true
}
