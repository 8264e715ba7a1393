// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type bulkRequest struct {
	Action string   `cbor:"action"`
	IDs    []string `cbor:"ids"`
	Status string   `cbor:"status"`
}

func TestMarshalIsDeterministicForMaps(t *testing.T) {
	// Go map iteration order is random; the encoding must not be.
	document := map[string]any{
		"status":        "pending",
		"requesterName": "Dana Ortiz",
		"destination":   "Lisbon",
		"department":    "Finance",
	}

	first, err := Marshal(document)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for attempt := 0; attempt < 20; attempt++ {
		again, err := Marshal(document)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("attempt %d produced different bytes", attempt)
		}
	}
}

func TestUnmarshalAnyProducesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{
		"vehicle": map[string]any{"plate": "KX-4411"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	nested, ok := top["vehicle"].(map[string]any)
	if !ok {
		t.Fatalf("nested type = %T, want map[string]any", top["vehicle"])
	}
	if nested["plate"] != "KX-4411" {
		t.Errorf("plate = %v, want KX-4411", nested["plate"])
	}
}

func TestTimeEncodesAsRFC3339Text(t *testing.T) {
	instant := time.Date(2026, 2, 14, 8, 30, 0, 125000000, time.UTC)
	data, err := Marshal(map[string]any{"submittedAt": instant})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	text, ok := decoded["submittedAt"].(string)
	if !ok {
		t.Fatalf("submittedAt decoded as %T, want string", decoded["submittedAt"])
	}
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		t.Fatalf("parsing %q: %v", text, err)
	}
	if !parsed.Equal(instant) {
		t.Errorf("round trip lost precision: got %v, want %v", parsed, instant)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	requests := []bulkRequest{
		{Action: "bulk-update", IDs: []string{"a", "b"}, Status: "approved"},
		{Action: "bulk-update", IDs: []string{"c"}, Status: "denied"},
	}
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range requests {
		var got bulkRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", index, err)
		}
		if got.Action != want.Action || got.Status != want.Status || len(got.IDs) != len(want.IDs) {
			t.Errorf("value %d = %+v, want %+v", index, got, want)
		}
	}
}
