// Package event defines the marketplace event stream consumed by
// external observers and indexers. Each event carries the identifiers
// and amounts needed to reconstruct the state transition without
// replaying call logic.
package event

import "github.com/Klingon-tech/klingnet-market/pkg/types"

// Type identifies the kind of an emitted event.
type Type string

const (
	TypeTokenCreated       Type = "TokenCreated"
	TypeTokenListed        Type = "TokenListed"
	TypeTokenSold          Type = "TokenSold"
	TypeListingCancelled   Type = "ListingCancelled"
	TypeTokenPriceUpdated  Type = "TokenPriceUpdated"
	TypeTokenBridged       Type = "TokenBridged"
	TypeTokenReceived      Type = "TokenReceived"
	TypeFeesWithdrawn      Type = "FeesWithdrawn"
	TypeRoyaltyInfoUpdated Type = "RoyaltyInfoUpdated"
	TypeFeeBpsUpdated      Type = "FeeBpsUpdated"
)

// TokenCreated is emitted when a new token is minted through the marketplace.
type TokenCreated struct {
	TokenID         types.TokenID `json:"tokenId"`
	Creator         types.Address `json:"creator"`
	URI             string        `json:"uri"`
	Price           uint64        `json:"price"`
	RoyaltyReceiver types.Address `json:"royaltyReceiver"`
	RoyaltyBps      uint16        `json:"royaltyBps"`
}

// TokenListed is emitted when a token enters marketplace escrow.
type TokenListed struct {
	TokenID types.TokenID `json:"tokenId"`
	Seller  types.Address `json:"seller"`
	Price   uint64        `json:"price"`
}

// TokenSold is emitted after a fully settled sale.
type TokenSold struct {
	TokenID        types.TokenID `json:"tokenId"`
	Seller         types.Address `json:"seller"`
	Buyer          types.Address `json:"buyer"`
	Price          uint64        `json:"price"`
	MarketplaceFee uint64        `json:"marketplaceFee"`
	RoyaltyAmount  uint64        `json:"royaltyAmount"`
	SellerProceeds uint64        `json:"sellerProceeds"`
	Refund         uint64        `json:"refund"`
}

// ListingCancelled is emitted when a seller retracts a listing.
type ListingCancelled struct {
	TokenID types.TokenID `json:"tokenId"`
	Seller  types.Address `json:"seller"`
}

// TokenPriceUpdated is emitted when a seller reprices an active listing.
type TokenPriceUpdated struct {
	TokenID  types.TokenID `json:"tokenId"`
	OldPrice uint64        `json:"oldPrice"`
	NewPrice uint64        `json:"newPrice"`
}

// TokenBridged is emitted when a token is burned and handed to the channel.
type TokenBridged struct {
	TokenID     types.TokenID `json:"tokenId"`
	Owner       types.Address `json:"owner"`
	DstChainTag uint32        `json:"dstChainTag"`
	Nonce       uint64        `json:"nonce"`
	Fee         uint64        `json:"fee"`
}

// TokenReceived is emitted when an inbound message credits a token.
type TokenReceived struct {
	TokenID     types.TokenID `json:"tokenId"`
	Owner       types.Address `json:"owner"`
	SrcChainTag uint32        `json:"srcChainTag"`
	Nonce       uint64        `json:"nonce"`
}

// FeesWithdrawn is emitted when the owner drains accrued marketplace fees.
type FeesWithdrawn struct {
	To     types.Address `json:"to"`
	Amount uint64        `json:"amount"`
}

// RoyaltyInfoUpdated is emitted when a token's royalty config changes.
type RoyaltyInfoUpdated struct {
	TokenID  types.TokenID `json:"tokenId"`
	Receiver types.Address `json:"receiver"`
	Bps      uint16        `json:"bps"`
}

// FeeBpsUpdated is emitted when the owner changes the marketplace fee rate.
type FeeBpsUpdated struct {
	OldBps uint16 `json:"oldBps"`
	NewBps uint16 `json:"newBps"`
}
