// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type unsignedCall struct {
	Zome     string            `cbor:"zome_name"`
	Function string            `cbor:"fn_name"`
	Payload  []byte            `cbor:"payload"`
	Nonce    [32]byte          `cbor:"nonce"`
	Extra    map[string]string `cbor:"extra,omitempty"`
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	call := unsignedCall{
		Zome:     "transactor",
		Function: "get_ledger",
		Payload:  []byte{1, 2, 3},
		Extra:    map[string]string{"z": "1", "a": "2", "m": "3"},
	}

	first, err := Marshal(call)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(call)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic: %x != %x", first, again)
		}
	}
}

func TestStreamFraming(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"sign", "import_seed", "list_keys"} {
		if err := encoder.Encode(map[string]string{"action": name}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"sign", "import_seed", "list_keys"} {
		var got map[string]string
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got["action"] != want {
			t.Errorf("action = %q, want %q", got["action"], want)
		}
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"signal": map[string]any{"kind": "app"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["signal"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["signal"])
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]int{"id": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := Diagnose(data); got != `{"id": 7}` {
		t.Errorf("Diagnose = %q", got)
	}
	if got := Diagnose([]byte{0xff, 0x00}); !strings.HasPrefix(got, "<invalid cbor") {
		t.Errorf("Diagnose(garbage) = %q, want invalid marker", got)
	}
}
