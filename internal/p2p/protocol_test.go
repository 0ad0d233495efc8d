package p2p

import (
	"encoding/json"
	"testing"
)

func TestBridgeTopic_PerLedger(t *testing.T) {
	if BridgeTopic(1) == BridgeTopic(2) {
		t.Fatal("distinct ledgers must use distinct topics")
	}
	if got, want := BridgeTopic(7), "/klingmarket/bridge/7/1.0.0"; got != want {
		t.Errorf("topic = %q, want %q", got, want)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := Envelope{SrcChainTag: 3, Nonce: 42, Fee: 100, Payload: []byte{0x01, 0x02}}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SrcChainTag != 3 || got.Nonce != 42 || got.Fee != 100 || len(got.Payload) != 2 {
		t.Errorf("round trip = %+v, want %+v", got, env)
	}
}

func TestValidateHandshake(t *testing.T) {
	n := New(Config{ChainTag: 1, NetworkID: "klingmarket-test-1"})

	tests := []struct {
		name   string
		msg    HandshakeMessage
		wantOK bool
	}{
		{"same network same tag", HandshakeMessage{ProtocolVersion: 1, NetworkID: "klingmarket-test-1", ChainTag: 1}, true},
		{"same network other ledger", HandshakeMessage{ProtocolVersion: 1, NetworkID: "klingmarket-test-1", ChainTag: 2}, true},
		{"wrong network", HandshakeMessage{ProtocolVersion: 1, NetworkID: "other-net", ChainTag: 1}, false},
		{"stale protocol", HandshakeMessage{ProtocolVersion: 0, NetworkID: "klingmarket-test-1", ChainTag: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := n.validateHandshake(tt.msg)
			if (reason == "") != tt.wantOK {
				t.Errorf("reason = %q, want ok=%v", reason, tt.wantOK)
			}
		})
	}
}
