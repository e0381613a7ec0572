// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/hostsync/lib/codec"
)

var (
	// ErrClosed is returned by calls on, or pending during, a
	// connection closed with Close.
	ErrClosed = errors.New("conductor: connection closed")

	// ErrNotAuthenticated is returned by app calls made before
	// Authenticate succeeded.
	ErrNotAuthenticated = errors.New("conductor: app connection not authenticated")
)

// ErrorKind classifies a conductor error response.
type ErrorKind string

// Error kinds the conductor reports, and the ones hostsync acts on.
const (
	KindAppAlreadyInstalled ErrorKind = "app_already_installed"
	KindCellAlreadyExists   ErrorKind = "cell_already_exists"
	KindChainHeadMoved      ErrorKind = "chain_head_moved"
	KindAppNotInstalled     ErrorKind = "app_not_installed"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindInvalidSignature    ErrorKind = "invalid_signature"
	KindDeserialization     ErrorKind = "deserialization"
	KindInternal            ErrorKind = "internal_error"
)

// ConductorError is a structured error response.
type ConductorError struct {
	Kind    ErrorKind `cbor:"kind"`
	Message string    `cbor:"message"`
}

func (e *ConductorError) Error() string {
	return fmt.Sprintf("conductor error %s: %s", e.Kind, e.Message)
}

// ConnectionError reports a failure to establish a connection, or the
// loss of an established one.
type ConnectionError struct {
	URL string
	// Attempts is the number of dials made; zero for a lost connection.
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("connecting to conductor at %s (%d attempts): %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("conductor connection %s lost: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is returned for any response that is not the success
// variant the request expects. Raw is the complete response payload.
// When the conductor sent a structured error, Err is that
// *ConductorError.
type ProtocolError struct {
	Request string
	Reason  string
	Raw     []byte
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Request, e.Err)
	}
	return fmt.Sprintf("%s: %s (response %s)", e.Request, e.Reason, codec.Diagnose(e.Raw))
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthenticationError reports that the conductor rejected an app
// authentication token, either at authentication or later when the
// token went stale. Err holds the underlying response error.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return "conductor rejected app authentication: " + e.Message
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
