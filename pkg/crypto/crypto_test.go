package crypto

import (
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	if a != b {
		t.Error("same input must produce same hash")
	}
	c := Hash([]byte("world"))
	if a == c {
		t.Error("different inputs must produce different hashes")
	}
}

func TestEscrowAddress_PerChainTag(t *testing.T) {
	a := EscrowAddress(1)
	b := EscrowAddress(1)
	c := EscrowAddress(2)

	if a != b {
		t.Error("escrow address must be deterministic per chain tag")
	}
	if a == c {
		t.Error("different chain tags must yield different escrow addresses")
	}
	if a.IsZero() {
		t.Error("escrow address must not be zero")
	}
}

func TestBridgeFeeAddress_PerChainTag(t *testing.T) {
	a := BridgeFeeAddress(1)
	if a != BridgeFeeAddress(1) {
		t.Error("fee address must be deterministic per chain tag")
	}
	if a == BridgeFeeAddress(2) {
		t.Error("different chain tags must yield different fee addresses")
	}
	if a == EscrowAddress(1) {
		t.Error("fee account must not alias the escrow account")
	}
	if a.IsZero() {
		t.Error("fee address must not be zero")
	}
}

func TestMessageID_DistinguishesCoordinates(t *testing.T) {
	payload := []byte{0x01, 0x02}
	a := MessageID(1, 1, payload)
	b := MessageID(1, 2, payload)
	c := MessageID(2, 1, payload)
	d := MessageID(1, 1, []byte{0x01, 0x03})

	if a == b || a == c || a == d {
		t.Error("message ids must differ when any coordinate differs")
	}
	if a != MessageID(1, 1, payload) {
		t.Error("message id must be deterministic")
	}
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	hash := Hash([]byte("authorize"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("valid signature must verify")
	}

	other := Hash([]byte("tampered"))
	if VerifySignature(other[:], sig, key.PublicKey()) {
		t.Error("signature over different hash must not verify")
	}

	wrongKey, _ := GenerateKey()
	if VerifySignature(hash[:], sig, wrongKey.PublicKey()) {
		t.Error("signature must not verify under a different key")
	}
}

func TestSign_RejectsBadHashLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := key.Sign([]byte("short")); err == nil {
		t.Error("expected error for non-32-byte hash")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	// secp256k1 serializes to the 32-byte scalar.
	restored, err := PrivateKeyFromBytes(key.key.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	if string(restored.PublicKey()) != string(key.PublicKey()) {
		t.Error("restored key must have the same public key")
	}

	if _, err := PrivateKeyFromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short key bytes")
	}
}
