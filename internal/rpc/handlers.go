package rpc

import (
	"errors"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

func (s *Server) handleFetchItems(req *Request) (interface{}, *Error) {
	var p PageParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	items, err := s.market.FetchMarketItems(p.Page)
	if err != nil {
		return nil, internalError(err)
	}
	return ItemsResult{Count: len(items), Items: items}, nil
}

func (s *Server) handleFetchItemsByPrice(req *Request) (interface{}, *Error) {
	var p PriceRangeParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	items, err := s.market.FetchItemsByPrice(p.MinPrice, p.MaxPrice, p.Page)
	if err != nil {
		return nil, internalError(err)
	}
	return ItemsResult{Count: len(items), Items: items}, nil
}

func (s *Server) handleFetchMyNFTs(req *Request) (interface{}, *Error) {
	var p AddressPageParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	addr, err := types.ParseAddress(p.Address)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid address"}
	}
	items, err := s.market.FetchMyNFTs(addr, p.Page)
	if err != nil {
		return nil, internalError(err)
	}
	return ItemsResult{Count: len(items), Items: items}, nil
}

func (s *Server) handleFetchItemsListed(req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	seller, err := types.ParseAddress(p.Address)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid address"}
	}
	items, err := s.market.FetchItemsListed(seller)
	if err != nil {
		return nil, internalError(err)
	}
	return ItemsResult{Count: len(items), Items: items}, nil
}

func (s *Server) handleGetItem(req *Request) (interface{}, *Error) {
	id, rpcErr := tokenIDFromParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	item, err := s.market.GetMarketItem(id)
	if errors.Is(err, token.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: "token not found"}
	}
	if err != nil {
		return nil, internalError(err)
	}
	return item, nil
}

func (s *Server) handleGetStats(req *Request) (interface{}, *Error) {
	return s.market.GetMarketplaceStats(), nil
}

func (s *Server) handleTokenGetInfo(req *Request) (interface{}, *Error) {
	id, rpcErr := tokenIDFromParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := s.tokens.Get(id)
	if errors.Is(err, token.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: "token not found"}
	}
	if err != nil {
		return nil, internalError(err)
	}
	return TokenInfoResult{
		TokenID:         id.String(),
		ChainTag:        id.ChainTag(),
		Counter:         id.Counter(),
		Owner:           rec.Owner.String(),
		URI:             rec.URI,
		RoyaltyReceiver: rec.RoyaltyReceiver.String(),
		RoyaltyBps:      rec.RoyaltyBps,
	}, nil
}

func (s *Server) handleBankGetBalance(req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	addr, err := types.ParseAddress(p.Address)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid address"}
	}
	balance, err := s.bank.BalanceOf(addr)
	if err != nil {
		return nil, internalError(err)
	}
	return BalanceResult{Address: addr.String(), Balance: balance}, nil
}

func (s *Server) handleBridgeListFailed(req *Request) (interface{}, *Error) {
	if s.inbound == nil {
		return nil, &Error{Code: CodeNotFound, Message: "bridge not enabled"}
	}
	failed, err := s.inbound.FailedMessages()
	if err != nil {
		return nil, internalError(err)
	}
	entries := make([]FailedMessageEntry, len(failed))
	for i, f := range failed {
		entries[i] = FailedMessageEntry{
			SrcChainTag: f.SrcChainTag,
			Nonce:       f.Nonce,
			PayloadLen:  len(f.Payload),
		}
	}
	return FailedListResult{Count: len(entries), Messages: entries}, nil
}

func (s *Server) handleBridgeListPending(req *Request) (interface{}, *Error) {
	if s.outbound == nil {
		return nil, &Error{Code: CodeNotFound, Message: "bridge not enabled"}
	}
	pending, err := s.outbound.PendingOutbox()
	if err != nil {
		return nil, internalError(err)
	}
	entries := make([]PendingMessageEntry, len(pending))
	for i, p := range pending {
		entries[i] = PendingMessageEntry{
			DstChainTag: p.DstChainTag,
			Nonce:       p.Nonce,
			Fee:         p.Fee,
			PayloadLen:  len(p.Payload),
		}
	}
	return PendingListResult{Count: len(entries), Messages: entries}, nil
}

func (s *Server) handleNetGetPeerInfo(req *Request) (interface{}, *Error) {
	if s.node == nil {
		return nil, &Error{Code: CodeNotFound, Message: "p2p not enabled"}
	}
	peers := s.node.PeerList()
	infos := make([]PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = PeerInfo{
			ID:          p.ID.String(),
			ConnectedAt: p.ConnectedAt.Format(time.RFC3339),
			Source:      p.Source,
		}
	}
	return PeerInfoResult{Count: len(infos), Peers: infos}, nil
}

func (s *Server) handleNetGetNodeInfo(req *Request) (interface{}, *Error) {
	if s.node == nil {
		return nil, &Error{Code: CodeNotFound, Message: "p2p not enabled"}
	}
	return NodeInfoResult{
		ID:       s.node.ID().String(),
		ChainTag: s.tokens.ChainTag(),
		Addrs:    s.node.Addrs(),
	}, nil
}

func (s *Server) handleNetGetBanList(req *Request) (interface{}, *Error) {
	if s.node == nil || s.node.Bans == nil {
		return nil, &Error{Code: CodeNotFound, Message: "p2p not enabled"}
	}
	bans := s.node.Bans.BanList()
	entries := make([]BanEntry, len(bans))
	for i, b := range bans {
		entries[i] = BanEntry{
			ID:        b.ID,
			Reason:    b.Reason,
			Score:     b.Score,
			BannedAt:  b.BannedAt,
			ExpiresAt: b.ExpiresAt,
		}
	}
	return BanListResult{Count: len(entries), Bans: entries}, nil
}

func tokenIDFromParams(req *Request) (types.TokenID, *Error) {
	var p TokenIDParam
	if err := parseParams(req, &p); err != nil {
		return types.TokenID{}, err
	}
	id, err := types.ParseTokenID(p.TokenID)
	if err != nil {
		return types.TokenID{}, &Error{Code: CodeInvalidParams, Message: "invalid token_id"}
	}
	return id, nil
}

func internalError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
