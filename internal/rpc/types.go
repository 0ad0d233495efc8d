package rpc

import "github.com/Klingon-tech/klingnet-market/internal/market"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeUnauthorized   = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// PageParam is used by paginated market queries.
type PageParam struct {
	Page int `json:"page"`
}

// PriceRangeParam is used by market_fetchItemsByPrice.
type PriceRangeParam struct {
	MinPrice uint64 `json:"min_price"`
	MaxPrice uint64 `json:"max_price"`
	Page     int    `json:"page"`
}

// AddressPageParam is used by market_fetchMyNFTs.
type AddressPageParam struct {
	Address string `json:"address"`
	Page    int    `json:"page"`
}

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// TokenIDParam is used by endpoints that take a single token id.
type TokenIDParam struct {
	TokenID string `json:"token_id"`
}

// ── Result types ────────────────────────────────────────────────────────

// ItemsResult wraps a page of market items.
type ItemsResult struct {
	Count int           `json:"count"`
	Items []market.Item `json:"items"`
}

// BalanceResult is returned by bank_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// TokenInfoResult is returned by token_getInfo.
type TokenInfoResult struct {
	TokenID         string `json:"token_id"`
	ChainTag        uint32 `json:"chain_tag"`
	Counter         uint64 `json:"counter"`
	Owner           string `json:"owner"`
	URI             string `json:"uri"`
	RoyaltyReceiver string `json:"royalty_receiver"`
	RoyaltyBps      uint16 `json:"royalty_bps"`
}

// FailedMessageEntry describes one parked inbound bridge message.
type FailedMessageEntry struct {
	SrcChainTag uint32 `json:"src_chain_tag"`
	Nonce       uint64 `json:"nonce"`
	PayloadLen  int    `json:"payload_len"`
}

// FailedListResult is returned by bridge_listFailed.
type FailedListResult struct {
	Count    int                  `json:"count"`
	Messages []FailedMessageEntry `json:"messages"`
}

// PendingMessageEntry describes one stuck outbound message.
type PendingMessageEntry struct {
	DstChainTag uint32 `json:"dst_chain_tag"`
	Nonce       uint64 `json:"nonce"`
	Fee         uint64 `json:"fee"`
	PayloadLen  int    `json:"payload_len"`
}

// PendingListResult is returned by bridge_listPending.
type PendingListResult struct {
	Count    int                   `json:"count"`
	Messages []PendingMessageEntry `json:"messages"`
}

// PeerInfo describes a connected relay.
type PeerInfo struct {
	ID          string `json:"id"`
	ConnectedAt string `json:"connected_at"`
	Source      string `json:"source,omitempty"`
}

// PeerInfoResult is returned by net_getPeerInfo.
type PeerInfoResult struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ID       string   `json:"id"`
	ChainTag uint32   `json:"chain_tag"`
	Addrs    []string `json:"addrs"`
}

// BanEntry describes a single banned relay.
type BanEntry struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// BanListResult is returned by net_getBanList.
type BanListResult struct {
	Count int        `json:"count"`
	Bans  []BanEntry `json:"bans"`
}

// ── Admin param/result types ────────────────────────────────────────────

// AdminAuth carries the owner's signature over an admin call. The signed
// digest binds the method name and every parameter, so a captured
// signature cannot be replayed against a different call.
type AdminAuth struct {
	PubKey    string `json:"pubkey"`    // hex, compressed secp256k1
	Signature string `json:"signature"` // hex, Schnorr over the call digest
}

// AdminSetFeeBpsParam is used by admin_setFeeBps.
type AdminSetFeeBpsParam struct {
	AdminAuth
	FeeBps uint16 `json:"fee_bps"`
}

// AdminWithdrawParam is used by admin_withdrawFees and admin_withdrawAll.
type AdminWithdrawParam struct {
	AdminAuth
	To string `json:"to"`
}

// AdminWithdrawResult is returned by the withdrawal methods.
type AdminWithdrawResult struct {
	Amount uint64 `json:"amount"`
}

// AdminRetryInboundParam is used by admin_retryInbound.
type AdminRetryInboundParam struct {
	AdminAuth
	SrcChainTag uint32 `json:"src_chain_tag"`
	Nonce       uint64 `json:"nonce"`
}

// AdminRetryOutboundParam is used by admin_retryOutbound.
type AdminRetryOutboundParam struct {
	AdminAuth
	DstChainTag uint32 `json:"dst_chain_tag"`
	Nonce       uint64 `json:"nonce"`
}

// OKResult is returned by admin methods with no other payload.
type OKResult struct {
	OK bool `json:"ok"`
}
