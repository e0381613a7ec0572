// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds HTTP response body reads: 64 MB. A checkpoint
// record batch for a long chain is the largest legitimate response.
const MaxResponseSize int64 = 64 << 20

// maxErrorBodySize bounds how much of an error body is quoted in an
// error message.
const maxErrorBodySize = 4 << 10

// ErrResponseTooLarge is returned by ReadResponse when the body
// exceeds MaxResponseSize.
var ErrResponseTooLarge = fmt.Errorf("netutil: response body exceeds %d bytes", MaxResponseSize)

// ReadResponse reads a response body of at most MaxResponseSize bytes.
// Unlike a bare io.LimitReader, an oversized body is an error rather
// than a silently truncated payload: a truncated record batch would
// otherwise surface later as a confusing decode failure.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// ErrorBody reads an error response body for use in a diagnostic
// message. Read errors are ignored and long bodies are truncated.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodySize+1))
	text := strings.TrimSpace(string(data))
	if len(data) > maxErrorBodySize {
		text = strings.TrimSpace(string(data[:maxErrorBodySize])) + "..."
	}
	return text
}
