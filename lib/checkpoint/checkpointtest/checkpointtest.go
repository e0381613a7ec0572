// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpointtest runs a fake checkpoint service for tests.
// It verifies request signatures, serves scripted record batches in
// a chosen Content-Encoding, and records each request.
package checkpointtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bureau-foundation/hostsync/lib/checkpoint"
	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// Request is one request the service received.
type Request struct {
	Path  string
	Since hashes.ActionHash
	// Verified is false when the signature did not check out; such
	// requests are answered 401.
	Verified bool
}

// Service is the fake. All methods are safe for concurrent use.
type Service struct {
	server *httptest.Server

	mu       sync.Mutex
	records  map[string][]conductor.SignedRecord
	statuses map[string]int
	encoding string
	requests []Request
}

// New starts a service, stopped when the test ends. Cells without
// records are answered with checkpoint.StatusNoCheckpoint.
func New(t testing.TB) *Service {
	t.Helper()
	service := &Service{
		records:  make(map[string][]conductor.SignedRecord),
		statuses: make(map[string]int),
	}
	service.server = httptest.NewServer(http.HandlerFunc(service.handle))
	t.Cleanup(service.server.Close)
	return service
}

// URL is the service base URL.
func (s *Service) URL() string { return s.server.URL }

// SetRecords sets the checkpoint served for cell.
func (s *Service) SetRecords(cell hashes.CellID, records []conductor.SignedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[checkpoint.RecordsPath(cell)] = records
}

// SetStatus makes requests for cell fail with status.
func (s *Service) SetStatus(cell hashes.CellID, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[checkpoint.RecordsPath(cell)] = status
}

// SetEncoding selects the Content-Encoding of responses. An encoding
// the checkpoint package cannot produce is announced in the header
// while the body is sent uncompressed.
func (s *Service) SetEncoding(encoding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding = encoding
}

// Requests returns the requests received so far.
func (s *Service) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request := Request{Path: r.URL.Path}
	var signed signing.SignedPayload
	var payload checkpoint.RecordsRequest
	if codec.Unmarshal(body, &signed) == nil && signing.VerifyPayload(&signed) == nil &&
		codec.Unmarshal(signed.Payload, &payload) == nil {
		request.Verified = true
		request.Since = payload.Since
	}

	s.mu.Lock()
	s.requests = append(s.requests, request)
	records, found := s.records[r.URL.Path]
	status, failing := s.statuses[r.URL.Path]
	encoding := s.encoding
	s.mu.Unlock()

	switch {
	case !request.Verified:
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	case failing:
		http.Error(w, "checkpoint unavailable", status)
		return
	case !found:
		w.WriteHeader(checkpoint.StatusNoCheckpoint)
		return
	}

	data, err := codec.Marshal(checkpoint.RecordBatch{Records: records})
	if err == nil && knownEncoding(encoding) {
		data, err = checkpoint.EncodeBody(encoding, data)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	if encoding != checkpoint.EncodingIdentity {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Write(data)
}

func knownEncoding(encoding string) bool {
	switch encoding {
	case checkpoint.EncodingIdentity, checkpoint.EncodingZstd, checkpoint.EncodingLZ4:
		return true
	}
	return false
}
