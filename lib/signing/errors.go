// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"errors"
	"fmt"
)

// ErrBadSignature is returned by Verify and VerifyPayload when the
// signature does not match.
var ErrBadSignature = errors.New("signing: signature verification failed")

// NonceError reports that no nonce could be drawn from the random
// source.
type NonceError struct {
	Err error
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("generating nonce: %v", e.Err)
}

func (e *NonceError) Unwrap() error { return e.Err }

// SigningError reports that the custodian was unreachable or refused
// to sign for the provenance key.
type SigningError struct {
	Agent string
	Err   error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing as %s: %v", e.Agent, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }
