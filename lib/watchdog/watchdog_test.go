// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile-watchdog.json")
	state := State{
		Command: "reconcile",
		PID:     4242,
		Started: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
	}
	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Command != state.Command || got.PID != state.PID || !got.Started.Equal(state.Started) {
		t.Errorf("Read = %+v, want %+v", got, state)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if permissions := info.Mode().Perm(); permissions != 0o600 {
		t.Errorf("permissions = %04o, want 0600", permissions)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestBegin(t *testing.T) {
	state := Begin("reconcile")
	if state.Command != "reconcile" || state.PID != os.Getpid() {
		t.Errorf("Begin = %+v", state)
	}
	if time.Since(state.Started) > time.Minute {
		t.Errorf("Started = %v", state.Started)
	}
}

func TestWriteOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile-watchdog.json")
	if err := Write(path, State{Command: "reconcile", PID: 1, Started: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, State{Command: "resync", PID: 2, Started: time.Now()}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != "resync" || got.PID != 2 {
		t.Errorf("Read = %+v, want the second write", got)
	}
}

func TestWriteParentDirectoryMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "reconcile-watchdog.json")
	if err := Write(path, Begin("reconcile")); err == nil {
		t.Fatal("Write into a missing directory succeeded")
	}
}

func TestReadErrors(t *testing.T) {
	directory := t.TempDir()

	if _, err := Read(filepath.Join(directory, "absent.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing file = %v, want os.ErrNotExist", err)
	}

	corrupt := filepath.Join(directory, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("not valid json{{{"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Read(corrupt)
	if err == nil || !strings.Contains(err.Error(), corrupt) {
		t.Errorf("Read corrupt file = %v, want an error naming %s", err, corrupt)
	}
}

func TestCheck(t *testing.T) {
	directory := t.TempDir()

	recent := filepath.Join(directory, "recent.json")
	if err := Write(recent, State{Command: "reconcile", PID: 7, Started: time.Now()}); err != nil {
		t.Fatal(err)
	}
	state, found, err := Check(recent, time.Hour)
	if err != nil || !found || state.PID != 7 {
		t.Errorf("Check recent = (%+v, %v, %v)", state, found, err)
	}

	stale := filepath.Join(directory, "stale.json")
	if err := Write(stale, State{Command: "reconcile", Started: time.Now().Add(-48 * time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if _, found, err := Check(stale, time.Hour); err != nil || found {
		t.Errorf("Check stale = (%v, %v), want (false, nil)", found, err)
	}

	if _, found, err := Check(filepath.Join(directory, "absent.json"), time.Hour); err != nil || found {
		t.Errorf("Check missing = (%v, %v), want (false, nil)", found, err)
	}

	corrupt := filepath.Join(directory, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{invalid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Check(corrupt, time.Hour); err == nil {
		t.Error("Check corrupt file returned no error")
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile-watchdog.json")
	if err := Write(path, Begin("reconcile")); err != nil {
		t.Fatal(err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("marker still exists after Clear")
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}
