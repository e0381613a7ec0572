// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  ConductorError
		want ErrorKind
	}{
		{"typed kind wins", ConductorError{Kind: KindCellAlreadyExists, Message: "AppAlreadyInstalled"}, KindCellAlreadyExists},
		{"internal with app text", ConductorError{Kind: KindInternal, Message: `ConductorError(AppAlreadyInstalled("core-app:2"))`}, KindAppAlreadyInstalled},
		{"empty kind with cell text", ConductorError{Message: "CellAlreadyExists(uhC0k...)"}, KindCellAlreadyExists},
		{"lowercase prose", ConductorError{Kind: KindInternal, Message: "source chain head moved: chain head moved"}, KindChainHeadMoved},
		{"head moved debug form", ConductorError{Kind: KindInternal, Message: "SourceChainError(HeadMoved(...))"}, KindChainHeadMoved},
		{"unrecognized internal", ConductorError{Kind: KindInternal, Message: "disk full"}, KindInternal},
		{"unrecognized empty", ConductorError{Message: "?"}, KindInternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Classify(); got != test.want {
				t.Errorf("Classify() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPredicatesUnwrap(t *testing.T) {
	err := fmt.Errorf("installing core-app:2: %w", &ProtocolError{
		Request: RequestInstallApp,
		Err:     &ConductorError{Kind: KindInternal, Message: "CellAlreadyExists"},
	})
	if !IsCellAlreadyExists(err) {
		t.Error("IsCellAlreadyExists missed a wrapped conductor error")
	}
	if IsAppAlreadyInstalled(err) || IsChainHeadMoved(err) {
		t.Error("predicates matched the wrong kind")
	}
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Error("KindOf of a plain error is not empty")
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := DefaultRetryPolicy()
	var wait time.Duration
	var got []time.Duration
	for range 7 {
		wait = policy.next(wait)
		got = append(got, wait)
	}
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for index := range want {
		if got[index] != want[index]*time.Second {
			t.Fatalf("backoff = %v, want %v seconds", got, want)
		}
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	err := &ProtocolError{Request: RequestListApps, Reason: "unexpected response type", Raw: []byte{0xa1, 0x61, 0x61, 0x01}}
	if got, want := err.Error(), `list_apps: unexpected response type (response {"a": 1})`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
