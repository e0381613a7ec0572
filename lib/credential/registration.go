// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/netutil"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// RegistrationPath is appended to the credential service base URL.
const RegistrationPath = "/registration/api/v1/registration"

// DefaultRegistrationTimeout bounds one registration request.
const DefaultRegistrationTimeout = 30 * time.Second

// RegistrationError reports a failed membrane proof request. It is
// fatal for the reconciliation pass.
type RegistrationError struct {
	Role string
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
	Body       string
	Err        error
}

func (e *RegistrationError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("registration for role %q: HTTP %d: %s", e.Role, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("registration for role %q: %v", e.Role, e.Err)
	default:
		return fmt.Sprintf("registration for role %q failed", e.Role)
	}
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// registrationPayload is the CBOR document the agent signs.
type registrationPayload struct {
	RegistrationCode string             `cbor:"registration_code"`
	AgentPubKey      hashes.AgentPubKey `cbor:"agent_pub_key"`
	Email            string             `cbor:"email"`
	Role             string             `cbor:"role"`
}

// RegistrationRequest is the JSON body posted to the credential
// service. SignedPayload is the base64 CBOR signing.SignedPayload
// over the same fields.
type RegistrationRequest struct {
	RegistrationCode string `json:"registration_code"`
	AgentPubKey      string `json:"agent_pub_key"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	Timestamp        int64  `json:"timestamp"`
	Signature        string `json:"signature"`
	SignedPayload    string `json:"signed_payload"`
}

// Verify decodes and checks the signed payload and that it matches
// the plain fields.
func (r *RegistrationRequest) Verify() error {
	raw, err := base64.StdEncoding.DecodeString(r.SignedPayload)
	if err != nil {
		return fmt.Errorf("decoding signed payload: %w", err)
	}
	var signed signing.SignedPayload
	if err := codec.Unmarshal(raw, &signed); err != nil {
		return fmt.Errorf("decoding signed payload: %w", err)
	}
	if err := signing.VerifyPayload(&signed); err != nil {
		return err
	}
	var payload registrationPayload
	if err := codec.Unmarshal(signed.Payload, &payload); err != nil {
		return fmt.Errorf("decoding registration payload: %w", err)
	}
	if payload.AgentPubKey.String() != r.AgentPubKey || payload.Email != r.Email ||
		payload.Role != r.Role || payload.RegistrationCode != r.RegistrationCode {
		return errors.New("signed payload does not match request fields")
	}
	return nil
}

// RegistrationResponse is the credential service's reply.
type RegistrationResponse struct {
	// MembraneProof is base64 (standard encoding).
	MembraneProof string `json:"mem_proof"`
}

// RegistrationClient requests membrane proofs from the credential
// service.
type RegistrationClient struct {
	endpoint   string
	signer     *signing.Signer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRegistrationClient returns a client for the service at baseURL.
// A zero timeout uses DefaultRegistrationTimeout.
func NewRegistrationClient(baseURL string, signer *signing.Signer, timeout time.Duration, logger *slog.Logger) *RegistrationClient {
	if timeout <= 0 {
		timeout = DefaultRegistrationTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RegistrationClient{
		endpoint:   strings.TrimSuffix(baseURL, "/") + RegistrationPath,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Register fetches a membrane proof for identity, role and agent and
// returns its raw base64 text, already checked to parse. A gateway
// timeout (HTTP 504 or 524) or client-side timeout is retried exactly
// once.
func (c *RegistrationClient) Register(ctx context.Context, identity Identity, role string, agent hashes.AgentPubKey) (string, error) {
	body, err := c.requestBody(ctx, identity, role, agent)
	if err != nil {
		return "", &RegistrationError{Role: role, Err: err}
	}

	proof, err := c.post(ctx, role, body)
	if err != nil && isGatewayTimeout(ctx, err) {
		c.logger.Warn("registration timed out, retrying once",
			"role", role,
			"error", err,
		)
		proof, err = c.post(ctx, role, body)
	}
	return proof, err
}

func (c *RegistrationClient) requestBody(ctx context.Context, identity Identity, role string, agent hashes.AgentPubKey) ([]byte, error) {
	signed, err := c.signer.SignPayload(ctx, agent, registrationPayload{
		RegistrationCode: identity.RegistrationCode,
		AgentPubKey:      agent,
		Email:            identity.Email,
		Role:             role,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := codec.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("encoding signed payload: %w", err)
	}
	return json.Marshal(RegistrationRequest{
		RegistrationCode: identity.RegistrationCode,
		AgentPubKey:      agent.String(),
		Email:            identity.Email,
		Role:             role,
		Timestamp:        signed.Timestamp,
		Signature:        base64.StdEncoding.EncodeToString(signed.Signature),
		SignedPayload:    base64.StdEncoding.EncodeToString(encoded),
	})
}

func (c *RegistrationClient) post(ctx context.Context, role string, body []byte) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &RegistrationError{Role: role, Err: err}
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", &RegistrationError{Role: role, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", &RegistrationError{
			Role:       role,
			StatusCode: response.StatusCode,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	data, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", &RegistrationError{Role: role, Err: err}
	}
	var reply RegistrationResponse
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", &RegistrationError{Role: role, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if _, err := ParseProof(reply.MembraneProof); err != nil {
		return "", &RegistrationError{Role: role, Err: err}
	}
	return reply.MembraneProof, nil
}

// isGatewayTimeout reports whether err is a timeout worth one retry.
// Cancellation of ctx itself never is.
func isGatewayTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var registrationErr *RegistrationError
	if errors.As(err, &registrationErr) {
		switch registrationErr.StatusCode {
		case http.StatusGatewayTimeout, 524:
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
