// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout bounds the wait for a response after the
// request is written. Sealing a new seed runs scrypt, so it is
// generous.
const responseReadTimeout = 45 * time.Second

// maxMessageSize bounds one request or response.
const maxMessageSize = 1 << 20

// Client talks to a custodian socket. Each call opens its own
// connection, matching the server's one-request-per-connection model.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath. Nothing is
// dialed until the first call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Sign asks the custodian to sign data as agent.
func (c *Client) Sign(ctx context.Context, agent hashes.AgentPubKey, data []byte) ([]byte, error) {
	var result signResponse
	err := c.call(ctx, ActionSign, signRequest{Action: ActionSign, Agent: agent, Data: data}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Signature) == 0 {
		return nil, fmt.Errorf("keystore returned an empty signature")
	}
	return result.Signature, nil
}

// ImportSeed hands a 32-byte seed to the custodian and returns the
// agent key derived from it. The seed buffer is not closed.
func (c *Client) ImportSeed(ctx context.Context, seed *secret.Buffer) (hashes.AgentPubKey, error) {
	var result keyResponse
	request := importSeedRequest{Action: ActionImportSeed, Seed: seed.Bytes()}
	if err := c.call(ctx, ActionImportSeed, request, &result); err != nil {
		return nil, err
	}
	if err := result.Agent.Validate(); err != nil {
		return nil, fmt.Errorf("import_seed response: %w", err)
	}
	return result.Agent, nil
}

// NewKey asks the custodian to generate and keep a random key.
func (c *Client) NewKey(ctx context.Context) (hashes.AgentPubKey, error) {
	var result keyResponse
	if err := c.call(ctx, ActionNewKey, map[string]string{"action": ActionNewKey}, &result); err != nil {
		return nil, err
	}
	if err := result.Agent.Validate(); err != nil {
		return nil, fmt.Errorf("new_key response: %w", err)
	}
	return result.Agent, nil
}

// ListKeys returns the agent keys the custodian holds.
func (c *Client) ListKeys(ctx context.Context) ([]hashes.AgentPubKey, error) {
	var result listKeysResponse
	if err := c.call(ctx, ActionListKeys, map[string]string{"action": ActionListKeys}, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

func (c *Client) call(ctx context.Context, action string, request, result any) error {
	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &Error{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
