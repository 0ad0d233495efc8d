package market

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// Item is the read model of one token as seen by query operations.
type Item struct {
	TokenID         types.TokenID `json:"tokenId"`
	Owner           types.Address `json:"owner"`
	URI             string        `json:"uri"`
	RoyaltyReceiver types.Address `json:"royaltyReceiver"`
	RoyaltyBps      uint16        `json:"royaltyBps"`
	Listed          bool          `json:"listed"`
	Seller          types.Address `json:"seller,omitempty"`
	Price           uint64        `json:"price,omitempty"`
}

// Stats summarizes marketplace activity on this ledger.
type Stats struct {
	ChainTag    uint32 `json:"chainTag"`
	ListedCount int    `json:"listedCount"`
	SoldCount   uint64 `json:"soldCount"`
	AccruedFees uint64 `json:"accruedFees"`
	FeeBps      uint16 `json:"feeBps"`
}

// FetchMarketItems returns one fixed-size page of the active listing
// set, in listing order.
func (m *Market) FetchMarketItems(page int) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.itemsForIDs(m.listed.page(page, PageSize))
}

// FetchMyNFTs returns one page of the tokens owned by addr, listed or
// not, in id order.
func (m *Market) FetchMyNFTs(addr types.Address, page int) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if page < 0 {
		return nil, nil
	}
	skip := page * PageSize
	var ids []types.TokenID
	err := m.tokens.ForEachOwnedBy(addr, func(id types.TokenID) error {
		if skip > 0 {
			skip--
			return nil
		}
		ids = append(ids, id)
		if len(ids) == PageSize {
			return storage.Stop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.itemsForIDs(ids)
}

// FetchItemsListed returns all active listings of one seller.
func (m *Market) FetchItemsListed(seller types.Address) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.itemsForIDs(m.listed.sellerItems(seller))
}

// FetchItemsByPrice returns one page of listings priced within
// [minPrice, maxPrice], cheapest first. The price index is a DB range
// scan, so work is bounded by the page window rather than the total
// number of tokens.
func (m *Market) FetchItemsByPrice(minPrice, maxPrice uint64, page int) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if page < 0 || minPrice > maxPrice {
		return nil, nil
	}

	start := make([]byte, len(prefixPriceIdx)+8)
	copy(start, prefixPriceIdx)
	binary.BigEndian.PutUint64(start[len(prefixPriceIdx):], minPrice)

	skip := page * PageSize
	var ids []types.TokenID
	err := m.db.ForEachFrom(prefixPriceIdx, start, func(key, value []byte) error {
		if len(key) != len(prefixPriceIdx)+8+types.TokenIDSize {
			return nil // Malformed key, skip.
		}
		price := binary.BigEndian.Uint64(key[len(prefixPriceIdx):])
		if price > maxPrice {
			return storage.Stop
		}
		if skip > 0 {
			skip--
			return nil
		}
		var id types.TokenID
		copy(id[:], key[len(prefixPriceIdx)+8:])
		ids = append(ids, id)
		if len(ids) == PageSize {
			return storage.Stop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.itemsForIDs(ids)
}

// GetMarketItem returns the read model of a single token.
func (m *Market) GetMarketItem(id types.TokenID) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, err := m.itemForID(id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetMarketplaceStats returns activity counters for this ledger.
func (m *Market) GetMarketplaceStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		ChainTag:    m.tokens.ChainTag(),
		ListedCount: m.listed.count(),
		SoldCount:   m.sold,
		AccruedFees: m.fees,
		FeeBps:      m.feeBps,
	}
}

func (m *Market) itemsForIDs(ids []types.TokenID) ([]Item, error) {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		item, err := m.itemForID(id)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (m *Market) itemForID(id types.TokenID) (*Item, error) {
	rec, err := m.tokens.Get(id)
	if err != nil {
		return nil, err
	}
	item := &Item{
		TokenID:         id,
		Owner:           rec.Owner,
		URI:             rec.URI,
		RoyaltyReceiver: rec.RoyaltyReceiver,
		RoyaltyBps:      rec.RoyaltyBps,
	}
	if lst, err := m.getListing(id); err == nil {
		item.Listed = true
		item.Seller = lst.Seller
		item.Price = lst.Price
	}
	return item, nil
}
