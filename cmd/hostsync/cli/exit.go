// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError requests a non-zero exit without an extra "error:" line.
// Commands return it after writing their own output, e.g. "plan"
// exits 2 when changes are pending and --exit-code is set.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the process exit code main should use.
func (e *ExitError) ExitCode() int {
	return e.Code
}
