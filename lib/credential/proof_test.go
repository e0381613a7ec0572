// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

var testIdentity = Identity{Email: "host@example.org", RegistrationCode: "ABCD-1234"}

// registrationServer is a fake credential service. Each request pops
// the next scripted status; once the script is exhausted it answers
// 200 with a proof derived from the request's email.
type registrationServer struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	script   []int
	hang     int
	requests []RegistrationRequest
}

func newRegistrationServer(t *testing.T, script ...int) *registrationServer {
	t.Helper()
	fake := &registrationServer{t: t, script: script}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.handle))
	t.Cleanup(fake.server.Close)
	return fake
}

func (s *registrationServer) handle(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost || request.URL.Path != RegistrationPath {
		http.NotFound(writer, request)
		return
	}
	var body RegistrationRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	if err := body.Verify(); err != nil {
		s.t.Errorf("registration request failed verification: %v", err)
		http.Error(writer, err.Error(), http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, body)
	hang := s.hang > 0
	if hang {
		s.hang--
	}
	status := http.StatusOK
	if !hang && len(s.script) > 0 {
		status = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if hang {
		select {
		case <-request.Context().Done():
		case <-time.After(5 * time.Second):
		}
		return
	}
	if status != http.StatusOK {
		http.Error(writer, "upstream unavailable", status)
		return
	}
	json.NewEncoder(writer).Encode(RegistrationResponse{
		MembraneProof: base64.StdEncoding.EncodeToString([]byte("proof for " + body.Email)),
	})
}

func (s *registrationServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// countingRegistrar counts calls and always fails.
type countingRegistrar struct{ calls int }

func (r *countingRegistrar) Register(context.Context, Identity, string, hashes.AgentPubKey) (string, error) {
	r.calls++
	return "", errors.New("registrar must not be called")
}

func newRegistrationFixture(t *testing.T, timeout time.Duration, script ...int) (*registrationServer, *RegistrationClient, hashes.AgentPubKey) {
	t.Helper()
	custodian := newFakeCustodian()
	agent, err := custodian.GenerateAgentKey(context.Background())
	if err != nil {
		t.Fatalf("GenerateAgentKey: %v", err)
	}
	server := newRegistrationServer(t, script...)
	signer := signing.New(signing.Config{Custodian: custodian})
	return server, NewRegistrationClient(server.server.URL+"/", signer, timeout, nil), agent
}

func TestReadOnlyProofMakesNoCalls(t *testing.T) {
	registrar := &countingRegistrar{}
	manager, err := NewProofManager(ProofsConfig{
		ReadOnly:  true,
		Registrar: registrar,
		Identity:  testIdentity,
	})
	if err != nil {
		t.Fatalf("NewProofManager: %v", err)
	}

	proof, err := manager.GetProof(context.Background(), testIdentity, "holofuel", nil)
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if !bytes.Equal(proof, []byte{0}) || !proof.IsReadOnly() {
		t.Errorf("proof = %v, want the read-only sentinel", proof)
	}

	spec := app.Spec{Name: "core-app", Version: "1", Roles: []app.RoleSpec{{Name: "a"}, {Name: "b"}}}
	proofs, err := manager.ProofsForApp(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("ProofsForApp: %v", err)
	}
	for role, proof := range proofs {
		if !proof.IsReadOnly() {
			t.Errorf("role %s: proof %v is not the sentinel", role, proof)
		}
	}
	if registrar.calls != 0 {
		t.Errorf("registrar called %d times in read-only mode", registrar.calls)
	}
}

func TestGetProofFetchesAndCaches(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, time.Second)
	store := NewMemoryStore()
	manager, err := NewProofManager(ProofsConfig{Store: store, Registrar: client, Identity: testIdentity})
	if err != nil {
		t.Fatalf("NewProofManager: %v", err)
	}
	ctx := context.Background()

	for range 3 {
		proof, err := manager.GetProof(ctx, testIdentity, "holofuel", agent)
		if err != nil {
			t.Fatalf("GetProof: %v", err)
		}
		if string(proof) != "proof for host@example.org" {
			t.Errorf("proof = %q", proof)
		}
	}
	if got := server.calls(); got != 1 {
		t.Errorf("credential service called %d times, want 1", got)
	}

	cached, err := store.Get(ctx, proofKeyPrefix+testIdentity.Email)
	if err != nil {
		t.Fatalf("cached proof: %v", err)
	}
	if string(cached) != base64.StdEncoding.EncodeToString([]byte("proof for host@example.org")) {
		t.Errorf("cached text = %q", cached)
	}

	request := server.requests[0]
	if request.AgentPubKey != agent.String() || request.Role != "holofuel" || request.RegistrationCode != "ABCD-1234" {
		t.Errorf("request = %+v", request)
	}
}

func TestRegistrationRetriesTimeoutOnce(t *testing.T) {
	for _, status := range []int{http.StatusGatewayTimeout, 524} {
		server, client, agent := newRegistrationFixture(t, time.Second, status)
		text, err := client.Register(context.Background(), testIdentity, "holofuel", agent)
		if err != nil {
			t.Fatalf("status %d: Register: %v", status, err)
		}
		if text == "" {
			t.Errorf("status %d: empty proof", status)
		}
		if got := server.calls(); got != 2 {
			t.Errorf("status %d: %d calls, want 2", status, got)
		}
	}
}

func TestRegistrationSecondTimeoutIsFatal(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, time.Second,
		http.StatusGatewayTimeout, http.StatusGatewayTimeout, http.StatusOK)
	_, err := client.Register(context.Background(), testIdentity, "holofuel", agent)
	var registrationErr *RegistrationError
	if !errors.As(err, &registrationErr) {
		t.Fatalf("got %v, want *RegistrationError", err)
	}
	if registrationErr.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("StatusCode = %d", registrationErr.StatusCode)
	}
	if got := server.calls(); got != 2 {
		t.Errorf("%d calls, want exactly 2", got)
	}
}

func TestRegistrationOtherStatusNotRetried(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, time.Second, http.StatusInternalServerError)
	_, err := client.Register(context.Background(), testIdentity, "holofuel", agent)
	var registrationErr *RegistrationError
	if !errors.As(err, &registrationErr) || registrationErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("got %v, want *RegistrationError with status 500", err)
	}
	if got := server.calls(); got != 1 {
		t.Errorf("%d calls, want 1", got)
	}
}

func TestRegistrationClientTimeoutRetried(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, 100*time.Millisecond)
	server.mu.Lock()
	server.hang = 1
	server.mu.Unlock()

	if _, err := client.Register(context.Background(), testIdentity, "holofuel", agent); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := server.calls(); got != 2 {
		t.Errorf("%d calls, want 2", got)
	}
}

func TestRegistrationFailureNotCached(t *testing.T) {
	_, client, agent := newRegistrationFixture(t, time.Second, http.StatusForbidden)
	store := NewMemoryStore()
	manager, err := NewProofManager(ProofsConfig{Store: store, Registrar: client, Identity: testIdentity})
	if err != nil {
		t.Fatalf("NewProofManager: %v", err)
	}
	if _, err := manager.GetProof(context.Background(), testIdentity, "holofuel", agent); err == nil {
		t.Fatal("GetProof succeeded against a refusing service")
	}
	if keys, _ := store.List(context.Background(), proofKeyPrefix); len(keys) != 0 {
		t.Errorf("failed registration cached: %v", keys)
	}
}

func TestProofsForAppClonesAcrossRoles(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, time.Second)
	manager, err := NewProofManager(ProofsConfig{Store: NewMemoryStore(), Registrar: client, Identity: testIdentity})
	if err != nil {
		t.Fatalf("NewProofManager: %v", err)
	}
	spec := app.Spec{
		Name:    "holofuel",
		Version: "1",
		Roles:   []app.RoleSpec{{Name: "transactor"}, {Name: "profiles"}, {Name: "notes"}},
	}
	proofs, err := manager.ProofsForApp(context.Background(), spec, agent)
	if err != nil {
		t.Fatalf("ProofsForApp: %v", err)
	}
	if len(proofs) != 3 {
		t.Fatalf("got %d proofs, want 3", len(proofs))
	}
	for role, proof := range proofs {
		if !bytes.Equal(proof, proofs["transactor"]) {
			t.Errorf("role %s has a different proof", role)
		}
	}
	proofs["profiles"][0] ^= 0xff
	if bytes.Equal(proofs["profiles"], proofs["notes"]) {
		t.Error("roles share one proof slice")
	}
	if got := server.calls(); got != 1 {
		t.Errorf("%d registrations for one app, want 1", got)
	}
}

func TestProofsForAppIdentityOverride(t *testing.T) {
	server, client, agent := newRegistrationFixture(t, time.Second)
	store := NewMemoryStore()
	manager, err := NewProofManager(ProofsConfig{Store: store, Registrar: client, Identity: testIdentity})
	if err != nil {
		t.Fatalf("NewProofManager: %v", err)
	}
	ctx := context.Background()

	plain := app.Spec{Name: "servicelogger", Version: "1"}
	override := app.Spec{
		Name:     "core-app",
		Version:  "1",
		Identity: &app.IdentityOverride{Email: "admin@example.org", RegistrationCode: "ZZZZ"},
	}
	plainProofs, err := manager.ProofsForApp(ctx, plain, agent)
	if err != nil {
		t.Fatalf("ProofsForApp(plain): %v", err)
	}
	overrideProofs, err := manager.ProofsForApp(ctx, override, agent)
	if err != nil {
		t.Fatalf("ProofsForApp(override): %v", err)
	}

	if string(plainProofs["servicelogger"]) != "proof for host@example.org" {
		t.Errorf("plain proof = %q", plainProofs["servicelogger"])
	}
	if string(overrideProofs["core-app"]) != "proof for admin@example.org" {
		t.Errorf("override proof = %q", overrideProofs["core-app"])
	}
	if got := server.calls(); got != 2 {
		t.Errorf("%d registrations, want 2", got)
	}
	if server.requests[1].RegistrationCode != "ZZZZ" {
		t.Errorf("override request used code %q", server.requests[1].RegistrationCode)
	}
	if _, err := store.Get(ctx, proofKeyPrefix+"admin@example.org"); err != nil {
		t.Errorf("override proof not cached: %v", err)
	}
}

func TestParseProof(t *testing.T) {
	if _, err := ParseProof("  "); err == nil {
		t.Error("ParseProof accepted empty text")
	}
	if _, err := ParseProof("not base64!"); err == nil {
		t.Error("ParseProof accepted invalid base64")
	}
	proof, err := ParseProof("AA==\n")
	if err != nil || !proof.IsReadOnly() {
		t.Errorf("ParseProof(AA==) = %v, %v", proof, err)
	}
}
