package types

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenIDSize is the length of a token identifier in bytes.
const TokenIDSize = 32

// TokenID is a 256-bit token identifier.
//
// The high 128 bits carry the origin chain tag so that independently
// operated ledgers never allocate colliding identifiers; the low 128
// bits hold the ledger-local counter. Only the low 32 bits of the tag
// half and the low 64 bits of the counter half are currently used:
//
//	[0:12]  zero
//	[12:16] chain tag (uint32, big-endian)
//	[16:24] zero
//	[24:32] local counter (uint64, big-endian)
type TokenID [TokenIDSize]byte

// PackTokenID builds a TokenID from an origin chain tag and a local counter.
func PackTokenID(chainTag uint32, counter uint64) TokenID {
	var id TokenID
	binary.BigEndian.PutUint32(id[12:16], chainTag)
	binary.BigEndian.PutUint64(id[24:32], counter)
	return id
}

// ChainTag returns the origin chain tag embedded in the identifier.
func (t TokenID) ChainTag() uint32 {
	return binary.BigEndian.Uint32(t[12:16])
}

// Counter returns the ledger-local counter embedded in the identifier.
func (t TokenID) Counter() uint64 {
	return binary.BigEndian.Uint64(t[24:32])
}

// IsZero returns true if the token ID is all zeros.
func (t TokenID) IsZero() bool {
	return t == TokenID{}
}

// String returns the 0x-prefixed hex-encoded token ID.
func (t TokenID) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// Bytes returns a copy of the token ID as a byte slice.
func (t TokenID) Bytes() []byte {
	b := make([]byte, TokenIDSize)
	copy(b, t[:])
	return b
}

// MarshalJSON encodes the token ID as a 0x-prefixed hex string.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a hex string into a token ID.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = TokenID{}
		return nil
	}
	parsed, err := ParseTokenID(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTokenID parses a hex token ID string, with or without a 0x prefix.
func ParseTokenID(s string) (TokenID, error) {
	s = strings.TrimPrefix(s, "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return TokenID{}, fmt.Errorf("invalid token id: %w", err)
	}
	if len(decoded) != TokenIDSize {
		return TokenID{}, fmt.Errorf("token id must be %d bytes, got %d", TokenIDSize, len(decoded))
	}
	var t TokenID
	copy(t[:], decoded)
	return t, nil
}
