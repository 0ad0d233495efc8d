package types

import (
	"encoding/json"
	"testing"
)

func TestPackTokenID_RoundTrip(t *testing.T) {
	tests := []struct {
		chainTag uint32
		counter  uint64
	}{
		{0, 0},
		{1, 1},
		{1, 12345},
		{2, 1},
		{4294967295, 18446744073709551615},
	}

	for _, tt := range tests {
		id := PackTokenID(tt.chainTag, tt.counter)
		if got := id.ChainTag(); got != tt.chainTag {
			t.Errorf("ChainTag() = %d, want %d", got, tt.chainTag)
		}
		if got := id.Counter(); got != tt.counter {
			t.Errorf("Counter() = %d, want %d", got, tt.counter)
		}
	}
}

func TestPackTokenID_NoCollisionAcrossTags(t *testing.T) {
	a := PackTokenID(1, 7)
	b := PackTokenID(2, 7)
	if a == b {
		t.Fatal("same counter on different chain tags must not collide")
	}
}

func TestTokenID_ZeroValue(t *testing.T) {
	var id TokenID
	if !id.IsZero() {
		t.Error("zero value should be IsZero")
	}
	if PackTokenID(1, 1).IsZero() {
		t.Error("packed id should not be IsZero")
	}
}

func TestTokenID_JSONRoundTrip(t *testing.T) {
	id := PackTokenID(3, 42)
	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back TokenID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != id {
		t.Errorf("round trip mismatch: %s != %s", back, id)
	}
}

func TestParseTokenID_Invalid(t *testing.T) {
	if _, err := ParseTokenID("0x1234"); err == nil {
		t.Error("expected error for short token id")
	}
	if _, err := ParseTokenID("zzzz"); err == nil {
		t.Error("expected error for non-hex token id")
	}
}
