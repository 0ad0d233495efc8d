package bridge

import (
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		Owner:           types.Address{0x01, 0x02},
		TokenID:         types.PackTokenID(7, 42),
		URI:             "ipfs://QmExample",
		RoyaltyReceiver: types.Address{0xAA},
		RoyaltyBps:      500,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if *got != *msg {
		t.Errorf("round trip = %+v, want %+v", got, msg)
	}
}

func TestMessageRoundTrip_EmptyURIAndZeroRoyalty(t *testing.T) {
	msg := &Message{
		Owner:   types.Address{0x01},
		TokenID: types.PackTokenID(1, 1),
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if *got != *msg {
		t.Errorf("round trip = %+v, want %+v", got, msg)
	}
}

func TestEncodeMessage_URITooLong(t *testing.T) {
	msg := &Message{
		Owner:   types.Address{0x01},
		TokenID: types.PackTokenID(1, 1),
		URI:     strings.Repeat("x", maxURILen+1),
	}
	if _, err := EncodeMessage(msg); !errors.Is(err, ErrURITooLong) {
		t.Errorf("err = %v, want ErrURITooLong", err)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	valid, err := EncodeMessage(&Message{
		Owner:           types.Address{0x01},
		TokenID:         types.PackTokenID(3, 9),
		URI:             "ipfs://x",
		RoyaltyReceiver: types.Address{0x02},
		RoyaltyBps:      100,
	})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"empty", nil, ErrTruncated},
		{"version only", valid[:1], ErrTruncated},
		{"cut mid header", valid[:20], ErrTruncated},
		{"cut mid uri", valid[:56], ErrTruncated},
		{"missing royalty tail", valid[:len(valid)-3], ErrTruncated},
		{"trailing bytes", append(append([]byte(nil), valid...), 0x00), ErrTrailingBytes},
		{"bad version", append([]byte{99}, valid[1:]...), ErrUnknownVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage(tt.payload); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeMessage_URILengthLies(t *testing.T) {
	valid, _ := EncodeMessage(&Message{
		Owner:   types.Address{0x01},
		TokenID: types.PackTokenID(1, 1),
		URI:     "ab",
	})
	// Inflate the declared uri length past the real payload end.
	corrupted := append([]byte(nil), valid...)
	corrupted[1+types.AddressSize+types.TokenIDSize] = 0xFF
	if _, err := DecodeMessage(corrupted); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}
