// Package bridge implements cross-ledger token transfer: burn on the
// source ledger, a self-describing payload across an asynchronous
// channel, and a credit on the destination ledger.
package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// Codec errors.
var (
	ErrUnknownVersion = errors.New("unknown payload version")
	ErrTruncated      = errors.New("payload truncated")
	ErrTrailingBytes  = errors.New("payload has trailing bytes")
	ErrURITooLong     = errors.New("token URI exceeds payload limit")
)

// payloadVersion is the current wire format version.
const payloadVersion = 1

// maxURILen bounds the URI field (u16 length prefix).
const maxURILen = 65535

// Message is the in-flight representation of a bridged token.
// It exists only as the payload between outbound and inbound; neither
// ledger may assume delivery until the destination observes it.
type Message struct {
	Owner           types.Address
	TokenID         types.TokenID
	URI             string
	RoyaltyReceiver types.Address
	RoyaltyBps      uint16
}

// EncodeMessage serializes a bridge message to its wire format.
//
// Layout:
//
//	[1 byte:  version]
//	[20 bytes: owner address]
//	[32 bytes: token id]
//	[2 bytes: uriLen (big-endian)]
//	[uriLen bytes: uri (UTF-8)]
//	[20 bytes: royalty receiver]
//	[2 bytes: royalty bps (big-endian)]
func EncodeMessage(msg *Message) ([]byte, error) {
	uriBytes := []byte(msg.URI)
	if len(uriBytes) > maxURILen {
		return nil, fmt.Errorf("%w: %d bytes", ErrURITooLong, len(uriBytes))
	}

	size := 1 + types.AddressSize + types.TokenIDSize + 2 + len(uriBytes) + types.AddressSize + 2
	buf := make([]byte, size)

	off := 0
	buf[off] = payloadVersion
	off++

	copy(buf[off:], msg.Owner[:])
	off += types.AddressSize

	copy(buf[off:], msg.TokenID[:])
	off += types.TokenIDSize

	binary.BigEndian.PutUint16(buf[off:], uint16(len(uriBytes)))
	off += 2
	copy(buf[off:], uriBytes)
	off += len(uriBytes)

	copy(buf[off:], msg.RoyaltyReceiver[:])
	off += types.AddressSize

	binary.BigEndian.PutUint16(buf[off:], msg.RoyaltyBps)

	return buf, nil
}

// DecodeMessage parses a wire payload back into a Message. The payload
// must round-trip exactly; short or oversized input is rejected.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, ErrTruncated
	}
	if data[0] != payloadVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, data[0])
	}

	var msg Message
	off := 1

	if len(data) < off+types.AddressSize+types.TokenIDSize+2 {
		return nil, ErrTruncated
	}
	copy(msg.Owner[:], data[off:])
	off += types.AddressSize

	copy(msg.TokenID[:], data[off:])
	off += types.TokenIDSize

	uriLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2

	if len(data) < off+uriLen+types.AddressSize+2 {
		return nil, ErrTruncated
	}
	msg.URI = string(data[off : off+uriLen])
	off += uriLen

	copy(msg.RoyaltyReceiver[:], data[off:])
	off += types.AddressSize

	msg.RoyaltyBps = binary.BigEndian.Uint16(data[off:])
	off += 2

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d extra", ErrTrailingBytes, len(data)-off)
	}
	return &msg, nil
}
