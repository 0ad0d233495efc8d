package rpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// adminDigestPrefix namespaces admin call digests away from any other
// signed material.
const adminDigestPrefix = "klingmarket/admin/"

// AdminDigest returns the hash the owner must sign for an admin call.
// The method name and every parameter are bound into the digest.
// Exported so clients can build matching signatures.
func AdminDigest(method string, fields ...string) types.Hash {
	msg := adminDigestPrefix + method + "|" + strings.Join(fields, "|")
	return crypto.Hash([]byte(msg))
}

// verifyAdmin checks that the call is signed by the marketplace owner.
func (s *Server) verifyAdmin(auth AdminAuth, digest types.Hash) *Error {
	pubKey, err := hex.DecodeString(auth.PubKey)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid pubkey hex"}
	}
	sig, err := hex.DecodeString(auth.Signature)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid signature hex"}
	}

	if crypto.AddressFromPubKey(pubKey) != s.owner {
		return &Error{Code: CodeUnauthorized, Message: "pubkey is not the marketplace owner"}
	}
	if !crypto.VerifySignature(digest[:], sig, pubKey) {
		return &Error{Code: CodeUnauthorized, Message: "signature verification failed"}
	}
	return nil
}

func (s *Server) handleAdminSetFeeBps(req *Request) (interface{}, *Error) {
	var p AdminSetFeeBpsParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	digest := AdminDigest("admin_setFeeBps", fmt.Sprint(p.FeeBps))
	if rpcErr := s.verifyAdmin(p.AdminAuth, digest); rpcErr != nil {
		return nil, rpcErr
	}

	if err := s.market.SetFeeBps(s.owner, p.FeeBps); err != nil {
		return nil, internalError(err)
	}
	return OKResult{OK: true}, nil
}

func (s *Server) handleAdminWithdrawFees(req *Request) (interface{}, *Error) {
	return s.handleWithdraw(req, "admin_withdrawFees", s.market.WithdrawMarketplaceFees)
}

func (s *Server) handleAdminWithdrawAll(req *Request) (interface{}, *Error) {
	return s.handleWithdraw(req, "admin_withdrawAll", s.market.WithdrawAll)
}

func (s *Server) handleWithdraw(req *Request, method string,
	withdraw func(caller, to types.Address) (uint64, error)) (interface{}, *Error) {

	var p AdminWithdrawParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	to, err := types.ParseAddress(p.To)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid destination address"}
	}
	digest := AdminDigest(method, to.String())
	if rpcErr := s.verifyAdmin(p.AdminAuth, digest); rpcErr != nil {
		return nil, rpcErr
	}

	amount, err := withdraw(s.owner, to)
	if err != nil {
		return nil, internalError(err)
	}
	return AdminWithdrawResult{Amount: amount}, nil
}

func (s *Server) handleAdminRetryInbound(req *Request) (interface{}, *Error) {
	if s.inbound == nil {
		return nil, &Error{Code: CodeNotFound, Message: "bridge not enabled"}
	}
	var p AdminRetryInboundParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	digest := AdminDigest("admin_retryInbound", fmt.Sprint(p.SrcChainTag), fmt.Sprint(p.Nonce))
	if rpcErr := s.verifyAdmin(p.AdminAuth, digest); rpcErr != nil {
		return nil, rpcErr
	}

	if err := s.inbound.RetryFailed(p.SrcChainTag, p.Nonce); err != nil {
		return nil, internalError(err)
	}
	return OKResult{OK: true}, nil
}

func (s *Server) handleAdminRetryOutbound(req *Request) (interface{}, *Error) {
	if s.outbound == nil {
		return nil, &Error{Code: CodeNotFound, Message: "bridge not enabled"}
	}
	var p AdminRetryOutboundParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	digest := AdminDigest("admin_retryOutbound", fmt.Sprint(p.DstChainTag), fmt.Sprint(p.Nonce))
	if rpcErr := s.verifyAdmin(p.AdminAuth, digest); rpcErr != nil {
		return nil, rpcErr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.outbound.RetrySubmit(ctx, p.DstChainTag, p.Nonce); err != nil {
		return nil, internalError(err)
	}
	return OKResult{OK: true}, nil
}
