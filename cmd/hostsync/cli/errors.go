// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies command errors so main can pick an exit
// status without parsing message text.
type ErrorCategory string

const (
	// CategoryValidation means bad input: wrong arguments, missing
	// flags, an invalid config file. Exit status 2.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound means a named resource does not exist, such as
	// an app id that is not installed.
	CategoryNotFound ErrorCategory = "not_found"
)

// CommandError is a categorized error returned by commands.
type CommandError struct {
	Category ErrorCategory
	Err      error
}

func (e *CommandError) Error() string { return e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }

// Validation reports bad input.
func Validation(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *CommandError {
	return &CommandError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// ExitStatus maps an error returned from Execute to a process exit
// status and reports whether main should print it.
func ExitStatus(err error) (code int, print bool) {
	if err == nil {
		return 0, false
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode(), false
	}
	var commandErr *CommandError
	if errors.As(err, &commandErr) && commandErr.Category == CategoryValidation {
		return 2, true
	}
	return 1, true
}
