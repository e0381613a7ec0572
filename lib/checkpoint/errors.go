// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import "fmt"

// ErrorKind classifies a resynchronization failure.
type ErrorKind string

const (
	// KindTransport: the checkpoint service could not be reached.
	KindTransport ErrorKind = "transport"
	// KindStatus: the service answered with an unexpected status.
	KindStatus ErrorKind = "status"
	// KindSerialization: a request or response could not be encoded
	// or decoded.
	KindSerialization ErrorKind = "serialization"
	// KindGraft: the conductor refused the records.
	KindGraft ErrorKind = "graft"
)

// Error is a resynchronization failure for one cell.
type Error struct {
	Kind ErrorKind
	Cell string
	// StatusCode and Body are set for KindStatus.
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("checkpoint %s for cell %s: HTTP %d: %s", e.Kind, e.Cell, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("checkpoint %s for cell %s: %v", e.Kind, e.Cell, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
