package market

import (
	"fmt"
	"math/bits"

	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// SaleReceipt reports the settled amounts of a completed sale.
type SaleReceipt struct {
	TokenID        types.TokenID
	Seller         types.Address
	Buyer          types.Address
	Price          uint64
	MarketplaceFee uint64
	RoyaltyAmount  uint64
	SellerProceeds uint64
	Refund         uint64
}

// CreateMarketSale settles the purchase of a listed token.
//
// The buyer pays `payment` (must cover the listing price); the excess is
// refunded. Settlement order is checks-effects-interactions: the listing
// is retired and the token handed to the buyer before any payout is
// attempted, so a payout callback cannot re-trigger the sale. Any
// failure after the buyer debit unwinds every in-call change; payout
// failures return ErrTransferFailed.
func (m *Market) CreateMarketSale(buyer types.Address, id types.TokenID, payment uint64) (*SaleReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Checks.
	lst, err := m.getListing(id)
	if err != nil {
		return nil, err
	}
	if payment < lst.Price {
		return nil, fmt.Errorf("%w: paid %d, price %d", ErrInsufficientPayment, payment, lst.Price)
	}
	rec, err := m.tokens.Get(id)
	if err != nil {
		return nil, err
	}

	fee := bpsShare(lst.Price, m.feeBps)
	royalty := uint64(0)
	if !rec.RoyaltyReceiver.IsZero() {
		royalty = bpsShare(lst.Price, rec.RoyaltyBps)
	}
	proceeds := lst.Price - fee - royalty
	refund := payment - lst.Price

	// Debit the buyer into escrow before touching state; an underfunded
	// buyer aborts with nothing mutated.
	if err := m.bank.Transfer(buyer, m.escrow, payment); err != nil {
		return nil, fmt.Errorf("debit buyer: %w", err)
	}

	// Every change past the debit unwinds through fail, so a fault at
	// any depth leaves the sale fully reverted.
	var delisted, handedOver, counted, paidSeller, paidRoyalty bool
	fail := func(cause error) (*SaleReceipt, error) {
		if paidRoyalty {
			m.bank.Transfer(rec.RoyaltyReceiver, m.escrow, royalty)
		}
		if paidSeller {
			m.bank.Transfer(lst.Seller, m.escrow, proceeds)
		}
		if counted {
			m.fees -= fee
			m.sold--
			putU64(m.db, keyFees, m.fees)
			putU64(m.db, keySold, m.sold)
		}
		if handedOver {
			m.tokens.Transfer(id, buyer, m.escrow)
		}
		if delisted {
			m.putListing(id, lst)
			m.listed.add(id, lst.Seller)
		}
		m.bank.Transfer(m.escrow, buyer, payment)
		klog.Market.Warn().Stringer("token", id).Err(cause).Msg("sale rolled back")
		return nil, cause
	}

	// Effects: retire the listing, hand the token to the buyer, bump the
	// fee ledger and sold counter.
	if err := m.removeListing(id, lst); err != nil {
		return fail(err)
	}
	delisted = true
	if err := m.tokens.Transfer(id, m.escrow, buyer); err != nil {
		return fail(fmt.Errorf("release token: %w", err))
	}
	handedOver = true
	m.fees += fee
	m.sold++
	counted = true
	if err := putU64(m.db, keyFees, m.fees); err != nil {
		return fail(err)
	}
	if err := putU64(m.db, keySold, m.sold); err != nil {
		return fail(err)
	}

	// Interactions: pay out from escrow.
	if proceeds > 0 {
		if err := m.bank.Transfer(m.escrow, lst.Seller, proceeds); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		}
		paidSeller = true
	}
	if royalty > 0 {
		if err := m.bank.Transfer(m.escrow, rec.RoyaltyReceiver, royalty); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		}
		paidRoyalty = true
	}
	if refund > 0 {
		if err := m.bank.Transfer(m.escrow, buyer, refund); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		}
	}

	receipt := &SaleReceipt{
		TokenID:        id,
		Seller:         lst.Seller,
		Buyer:          buyer,
		Price:          lst.Price,
		MarketplaceFee: fee,
		RoyaltyAmount:  royalty,
		SellerProceeds: proceeds,
		Refund:         refund,
	}

	m.bus.Emit(event.TypeTokenSold, event.TokenSold{
		TokenID:        id,
		Seller:         lst.Seller,
		Buyer:          buyer,
		Price:          lst.Price,
		MarketplaceFee: fee,
		RoyaltyAmount:  royalty,
		SellerProceeds: proceeds,
		Refund:         refund,
	})
	klog.Market.Info().
		Stringer("token", id).
		Uint64("price", lst.Price).
		Uint64("fee", fee).
		Uint64("royalty", royalty).
		Msg("sold")
	return receipt, nil
}

// bpsShare computes floor(amount * bps / 10000) without intermediate
// overflow (amount may approach MaxPrice).
func bpsShare(amount uint64, bps uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}
