// Package crypto provides cryptographic primitives for the marketplace.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-market/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// EscrowAddress derives the marketplace escrow address for a ledger.
// Tokens held in custody while listed are owned by this address. The
// derivation is deterministic per chain tag so every node on a ledger
// agrees on the escrow identity without coordination.
func EscrowAddress(chainTag uint32) types.Address {
	buf := make([]byte, 0, 32)
	buf = append(buf, []byte("klingmarket/escrow/")...)
	buf = binary.BigEndian.AppendUint32(buf, chainTag)
	h := Hash(buf)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// BridgeFeeAddress derives the account that accumulates channel fees
// collected from outbound bridge sends on a ledger. Deterministic per
// chain tag, like the escrow address.
func BridgeFeeAddress(chainTag uint32) types.Address {
	buf := make([]byte, 0, 32)
	buf = append(buf, []byte("klingmarket/bridgefees/")...)
	buf = binary.BigEndian.AppendUint32(buf, chainTag)
	h := Hash(buf)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// MessageID computes the identity of a bridge message from its routing
// coordinates. Used to key delivery de-duplication and recovery records.
func MessageID(srcChainTag uint32, nonce uint64, payload []byte) types.Hash {
	buf := make([]byte, 12+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], srcChainTag)
	binary.BigEndian.PutUint64(buf[4:12], nonce)
	copy(buf[12:], payload)
	return Hash(buf)
}
