// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conductortest runs an in-process fake conductor for tests.
//
// The fake speaks the real wire protocol over gorilla/websocket on an
// httptest server: the admin interface at /admin and the app interface
// at /app. It keeps installed apps in memory, derives DNA hashes from
// role names (so reinstalling the same roles for the same agent
// reports existing cells), verifies zome call signatures, and records
// every request so tests can assert on what a client did.
package conductortest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// ZomeHandler answers a verified zome call.
type ZomeHandler func(call signing.UnsignedCall) (any, error)

// mutating lists the request types that change conductor state.
var mutating = map[string]bool{
	conductor.RequestInstallApp:         true,
	conductor.RequestEnableApp:          true,
	conductor.RequestDisableApp:         true,
	conductor.RequestUninstallApp:       true,
	conductor.RequestGraftRecords:       true,
	conductor.RequestGenerateAgentKey:   true,
	conductor.RequestAttachAppInterface: true,
}

// Conductor is the fake. All methods are safe for concurrent use.
type Conductor struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	apps        map[string]*conductor.AppInfo
	order       []string
	proofs      map[string][]byte
	tokens      map[string]string
	failures    map[string][]conductor.ConductorError
	lateFails   map[string][]conductor.ConductorError
	dropped     map[string]bool
	requests    []string
	grafted     map[string][]conductor.SignedRecord
	zomeHandler ZomeHandler
	origins     []string
	connections []*serverConn
}

// New starts a fake conductor, stopped when the test ends.
func New(t testing.TB) *Conductor {
	t.Helper()
	fake := &Conductor{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		apps:      make(map[string]*conductor.AppInfo),
		proofs:    make(map[string][]byte),
		tokens:    make(map[string]string),
		failures:  make(map[string][]conductor.ConductorError),
		lateFails: make(map[string][]conductor.ConductorError),
		dropped:   make(map[string]bool),
		grafted:   make(map[string][]conductor.SignedRecord),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) { fake.serve(w, r, true) })
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) { fake.serve(w, r, false) })
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

// Close stops the server and drops every connection.
func (c *Conductor) Close() {
	c.mu.Lock()
	connections := slices.Clone(c.connections)
	c.mu.Unlock()
	for _, connection := range connections {
		connection.ws.Close()
	}
	c.server.Close()
}

// AdminURL is the admin interface's websocket URL.
func (c *Conductor) AdminURL() string {
	return "ws" + strings.TrimPrefix(c.server.URL, "http") + "/admin"
}

// AppURL is the app interface's websocket URL.
func (c *Conductor) AppURL() string {
	return "ws" + strings.TrimPrefix(c.server.URL, "http") + "/app"
}

// DnaHash is the DNA hash the fake assigns to a role.
func DnaHash(role string) hashes.DnaHash {
	return hashes.NewDnaHash(signing.Digest([]byte("dna:" + role)))
}

// NewAgentKey returns a random, well-formed agent key.
func NewAgentKey() hashes.AgentPubKey {
	public, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("conductortest: " + err.Error())
	}
	return hashes.NewAgentPubKey(public)
}

// AddApp installs an app directly, with one provisioned cell per role
// for agent. It returns the stored info.
func (c *Conductor) AddApp(appID string, agent hashes.AgentPubKey, status conductor.AppStatus, roles ...string) conductor.AppInfo {
	info := conductor.AppInfo{
		InstalledAppID: appID,
		AgentPubKey:    agent,
		Status:         status,
		CellInfo:       make(map[string][]conductor.CellInfo),
	}
	for _, role := range roles {
		cell := hashes.CellID{DnaHash: DnaHash(role), AgentPubKey: agent}
		info.CellInfo[role] = []conductor.CellInfo{{Type: conductor.CellProvisioned, CellID: &cell, Name: role}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(&info)
	return info
}

// App returns a copy of an installed app.
func (c *Conductor) App(appID string) (conductor.AppInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.apps[appID]
	if !ok {
		return conductor.AppInfo{}, false
	}
	return *info, true
}

// AppIDs lists installed app ids in install order.
func (c *Conductor) AppIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Proof returns the membrane proof an app's role was installed with.
func (c *Conductor) Proof(appID, role string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proofs[appID+"/"+role]
}

// FailNext makes the next request of requestType fail with kind and
// message. Failures queue in order.
func (c *Conductor) FailNext(requestType string, kind conductor.ErrorKind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[requestType] = append(c.failures[requestType], conductor.ConductorError{Kind: kind, Message: message})
}

// FailNextAfterApply makes the next request of requestType take effect
// and then answer with a failure of kind and message, like a conductor
// that registers an app before genesis of its cells fails.
func (c *Conductor) FailNextAfterApply(requestType string, kind conductor.ErrorKind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lateFails[requestType] = append(c.lateFails[requestType], conductor.ConductorError{Kind: kind, Message: message})
}

// DropResponses makes the fake never answer requestType.
func (c *Conductor) DropResponses(requestType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[requestType] = true
}

// SetZomeHandler installs the handler for verified zome calls.
func (c *Conductor) SetZomeHandler(handler ZomeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zomeHandler = handler
}

// Requests returns every request received, as "type" or "type app_id".
func (c *Conductor) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

// MutatingRequests filters Requests to state-changing requests.
func (c *Conductor) MutatingRequests() []string {
	var out []string
	for _, request := range c.Requests() {
		requestType, _, _ := strings.Cut(request, " ")
		if mutating[requestType] {
			out = append(out, request)
		}
	}
	return out
}

// Grafted returns the records grafted into cell.
func (c *Conductor) Grafted(cell hashes.CellID) []conductor.SignedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.grafted[cell.String()])
}

// Origins lists the Origin header of every handshake.
func (c *Conductor) Origins() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.origins)
}

// Signal sends an unsolicited signal frame on every open connection.
func (c *Conductor) Signal(data []byte) {
	c.mu.Lock()
	connections := slices.Clone(c.connections)
	c.mu.Unlock()
	for _, connection := range connections {
		connection.send(conductor.Message{Type: conductor.MessageSignal, Data: data})
	}
}

func (c *Conductor) storeLocked(info *conductor.AppInfo) {
	if _, exists := c.apps[info.InstalledAppID]; !exists {
		c.order = append(c.order, info.InstalledAppID)
	}
	c.apps[info.InstalledAppID] = info
}

func (c *Conductor) takeFailure(queues map[string][]conductor.ConductorError, requestType string) *conductor.ConductorError {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := queues[requestType]
	if len(queue) == 0 {
		return nil
	}
	queues[requestType] = queue[1:]
	failure := queue[0]
	return &failure
}

func errorf(kind conductor.ErrorKind, format string, args ...any) *conductor.ConductorError {
	return &conductor.ConductorError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func encodeValue(value any) codec.RawMessage {
	data, err := codec.Marshal(value)
	if err != nil {
		panic("conductortest: encoding response: " + err.Error())
	}
	return data
}
