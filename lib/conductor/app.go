// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// AppClient is a connection to an app interface, bound to the one app
// its token was issued for.
type AppClient struct {
	conn          *conn
	authenticated atomic.Bool
}

// DialApp opens an unauthenticated app connection. Calls other than
// Authenticate fail with ErrNotAuthenticated until it succeeds.
func DialApp(ctx context.Context, appURL string, options Options) (*AppClient, error) {
	options = options.withDefaults()
	c, err := dial(ctx, appURL, options)
	if err != nil {
		return nil, err
	}
	return &AppClient{conn: c}, nil
}

// ConnectApp dials and authenticates. A rejected token closes the
// connection and returns *AuthenticationError.
func ConnectApp(ctx context.Context, appURL string, token []byte, options Options) (*AppClient, error) {
	client, err := DialApp(ctx, appURL, options)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx, token); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Authenticate presents token. It is not retried.
func (a *AppClient) Authenticate(ctx context.Context, token []byte) error {
	err := a.conn.call(ctx, RequestAuthenticate, authenticateRequest{Token: token}, ResponseAuthenticated, nil)
	var conductorErr *ConductorError
	if errors.As(err, &conductorErr) {
		return &AuthenticationError{Message: conductorErr.Message, Err: err}
	}
	if err != nil {
		return err
	}
	a.authenticated.Store(true)
	return nil
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (a *AppClient) Close() error {
	return a.conn.close()
}

// AppInfo returns the bound app's info.
func (a *AppClient) AppInfo(ctx context.Context) (*AppInfo, error) {
	if !a.authenticated.Load() {
		return nil, ErrNotAuthenticated
	}
	var info *AppInfo
	if err := a.conn.call(ctx, RequestAppInfo, nil, ResponseAppInfo, &info); err != nil {
		return nil, a.checkAuthorized(err)
	}
	if info == nil {
		return nil, &ProtocolError{Request: RequestAppInfo, Reason: "app not found"}
	}
	return info, nil
}

// CallZome dispatches a signed call and returns the CBOR result.
func (a *AppClient) CallZome(ctx context.Context, envelope *signing.Envelope) (codec.RawMessage, error) {
	if !a.authenticated.Load() {
		return nil, ErrNotAuthenticated
	}
	var result codec.RawMessage
	request := callZomeRequest{Bytes: envelope.Bytes, Signature: envelope.Signature}
	if err := a.conn.call(ctx, RequestCallZome, request, ResponseZomeCalled, &result); err != nil {
		return nil, a.checkAuthorized(err)
	}
	return result, nil
}

// checkAuthorized turns an unauthorized response into
// *AuthenticationError and marks the connection unauthenticated, so
// later calls fail with ErrNotAuthenticated until Authenticate
// succeeds again.
func (a *AppClient) checkAuthorized(err error) error {
	if KindOf(err) != KindUnauthorized {
		return err
	}
	a.authenticated.Store(false)
	var conductorErr *ConductorError
	errors.As(err, &conductorErr)
	return &AuthenticationError{Message: conductorErr.Message, Err: err}
}

// Call signs a call to zome/function on cell, dispatches it, and
// decodes the result into T. A result that does not decode into T is
// a *ProtocolError.
func Call[T any](ctx context.Context, client *AppClient, signer *signing.Signer, cell hashes.CellID, zome, function string, payload any) (T, error) {
	var zero T
	envelope, err := signer.SignCall(ctx, cell, zome, function, payload)
	if err != nil {
		return zero, err
	}
	raw, err := client.CallZome(ctx, envelope)
	if err != nil {
		return zero, err
	}
	var result T
	if err := codec.Unmarshal(raw, &result); err != nil {
		return zero, &ProtocolError{
			Request: fmt.Sprintf("%s %s/%s", RequestCallZome, zome, function),
			Reason:  fmt.Sprintf("decoding result as %T: %v", result, err),
			Raw:     raw,
		}
	}
	return result, nil
}
