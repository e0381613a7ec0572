// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestEmitJSON(t *testing.T) {
	var output JSONOutput
	flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
	output.AddFlag(flagSet)

	var buffer bytes.Buffer
	done, err := output.EmitJSON(&buffer, []string{"a"})
	if done || err != nil || buffer.Len() != 0 {
		t.Fatalf("EmitJSON without --json: done=%v err=%v output=%q", done, err, buffer.String())
	}

	if err := flagSet.Parse([]string{"--json"}); err != nil {
		t.Fatal(err)
	}
	var nilSlice []string
	done, err = output.EmitJSON(&buffer, nilSlice)
	if !done || err != nil {
		t.Fatalf("EmitJSON with --json: done=%v err=%v", done, err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Errorf("nil slice encoded as %q, want []", got)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buffer bytes.Buffer
	newLogger(&buffer, false, false).Info("reconciled", "installed", 2)
	if !strings.HasPrefix(buffer.String(), "{") {
		t.Errorf("non-terminal output = %q, want JSON", buffer.String())
	}

	buffer.Reset()
	newLogger(&buffer, true, false).Debug("hidden")
	if buffer.Len() != 0 {
		t.Errorf("debug logged without verbose: %q", buffer.String())
	}
	newLogger(&buffer, true, true).Debug("shown")
	if !strings.Contains(buffer.String(), "msg=shown") {
		t.Errorf("text output = %q, want msg=shown", buffer.String())
	}
}
