// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"errors"
	"strings"
)

// Conductors older than the typed error kinds report every failure
// as internal_error with a Rust-style debug message. These patterns
// recover the kind from that text and are the only place hostsync
// inspects conductor error messages.
var messagePatterns = []struct {
	kind      ErrorKind
	fragments []string
}{
	{KindAppAlreadyInstalled, []string{"AppAlreadyInstalled", "app already installed"}},
	{KindCellAlreadyExists, []string{"CellAlreadyExists", "cell already exists"}},
	{KindChainHeadMoved, []string{"HeadMoved", "chain head moved"}},
	{KindAppNotInstalled, []string{"AppNotInstalled", "app not installed"}},
}

// Classify returns the error's kind, inferring it from the message
// when the conductor sent a generic or empty kind.
func (e *ConductorError) Classify() ErrorKind {
	if e.Kind != "" && e.Kind != KindInternal {
		return e.Kind
	}
	lower := strings.ToLower(e.Message)
	for _, pattern := range messagePatterns {
		for _, fragment := range pattern.fragments {
			if strings.Contains(e.Message, fragment) || strings.Contains(lower, strings.ToLower(fragment)) {
				return pattern.kind
			}
		}
	}
	if e.Kind == "" {
		return KindInternal
	}
	return e.Kind
}

// KindOf returns the classified kind of the conductor error in err's
// chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var conductorErr *ConductorError
	if errors.As(err, &conductorErr) {
		return conductorErr.Classify()
	}
	return ""
}

// IsAppAlreadyInstalled reports an install of an id that exists.
func IsAppAlreadyInstalled(err error) bool { return KindOf(err) == KindAppAlreadyInstalled }

// IsCellAlreadyExists reports an install whose cells exist under
// another app.
func IsCellAlreadyExists(err error) bool { return KindOf(err) == KindCellAlreadyExists }

// IsChainHeadMoved reports a source chain divergence.
func IsChainHeadMoved(err error) bool { return KindOf(err) == KindChainHeadMoved }
