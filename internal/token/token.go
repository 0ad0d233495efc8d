// Package token owns token existence, owner-of-record, URI metadata and
// royalty configuration for one ledger instance.
//
// Token identifiers embed the origin chain tag in their high bits (see
// types.PackTokenID), so ids allocated by independently operated ledgers
// never collide. A burned token cannot be re-minted through Mint; only a
// bridge credit (MintWithID) can bring an id back into existence, and
// only while it is absent from this ledger.
package token

import (
	"errors"

	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// MaxRoyaltyBps is the maximum royalty rate, in basis points (10%).
const MaxRoyaltyBps = 1000

// Token store errors.
var (
	ErrNotFound        = errors.New("token not found")
	ErrAlreadyExists   = errors.New("token already exists on this ledger")
	ErrInvalidURI      = errors.New("token URI must not be empty")
	ErrInvalidRoyalty  = errors.New("royalty bps out of range")
	ErrZeroOwner       = errors.New("token owner must not be the zero address")
	ErrUnauthorized    = errors.New("not the token owner")
	ErrCounterOverflow = errors.New("token counter overflow")
)

// Record is the persisted state of one token.
type Record struct {
	Owner           types.Address `json:"owner"`
	URI             string        `json:"uri"`
	RoyaltyReceiver types.Address `json:"royaltyReceiver"`
	RoyaltyBps      uint16        `json:"royaltyBps"`
}
