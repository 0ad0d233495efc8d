package market

import (
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// listedIndex tracks the listed set in memory: an order-preserving slice
// with index-tracked swap-and-pop removal, plus a per-seller view.
// Queries stay O(page size) instead of scanning all tokens.
type listedIndex struct {
	ids []types.TokenID
	pos map[types.TokenID]int

	bySeller  map[types.Address][]types.TokenID
	sellerPos map[types.Address]map[types.TokenID]int
}

func newListedIndex() *listedIndex {
	return &listedIndex{
		pos:       make(map[types.TokenID]int),
		bySeller:  make(map[types.Address][]types.TokenID),
		sellerPos: make(map[types.Address]map[types.TokenID]int),
	}
}

func (ix *listedIndex) contains(id types.TokenID) bool {
	_, ok := ix.pos[id]
	return ok
}

func (ix *listedIndex) count() int {
	return len(ix.ids)
}

func (ix *listedIndex) add(id types.TokenID, seller types.Address) {
	if ix.contains(id) {
		return
	}
	ix.pos[id] = len(ix.ids)
	ix.ids = append(ix.ids, id)

	if ix.sellerPos[seller] == nil {
		ix.sellerPos[seller] = make(map[types.TokenID]int)
	}
	ix.sellerPos[seller][id] = len(ix.bySeller[seller])
	ix.bySeller[seller] = append(ix.bySeller[seller], id)
}

func (ix *listedIndex) remove(id types.TokenID, seller types.Address) {
	i, ok := ix.pos[id]
	if !ok {
		return
	}
	last := len(ix.ids) - 1
	moved := ix.ids[last]
	ix.ids[i] = moved
	ix.ids = ix.ids[:last]
	ix.pos[moved] = i
	delete(ix.pos, id)

	sp := ix.sellerPos[seller]
	if j, ok := sp[id]; ok {
		sids := ix.bySeller[seller]
		lastJ := len(sids) - 1
		movedS := sids[lastJ]
		sids[j] = movedS
		ix.bySeller[seller] = sids[:lastJ]
		sp[movedS] = j
		delete(sp, id)
		if len(sp) == 0 {
			delete(ix.sellerPos, seller)
			delete(ix.bySeller, seller)
		}
	}
}

// page returns the n-th fixed-size window of the listed set.
func (ix *listedIndex) page(n, size int) []types.TokenID {
	if n < 0 || size <= 0 {
		return nil
	}
	start := n * size
	if start >= len(ix.ids) {
		return nil
	}
	end := start + size
	if end > len(ix.ids) {
		end = len(ix.ids)
	}
	out := make([]types.TokenID, end-start)
	copy(out, ix.ids[start:end])
	return out
}

// sellerItems returns a copy of the seller's active listing ids.
func (ix *listedIndex) sellerItems(seller types.Address) []types.TokenID {
	sids := ix.bySeller[seller]
	out := make([]types.TokenID, len(sids))
	copy(out, sids)
	return out
}

// rebuildIndex reconstructs the in-memory listed set from the persisted
// listing records. Insertion order is id order after a restart.
func (m *Market) rebuildIndex() error {
	return m.db.ForEach(prefixListing, func(key, value []byte) error {
		if len(key) != len(prefixListing)+types.TokenIDSize {
			return nil // Malformed key, skip.
		}
		var id types.TokenID
		copy(id[:], key[len(prefixListing):])

		lst, err := m.getListing(id)
		if err != nil {
			return err
		}
		m.listed.add(id, lst.Seller)
		return nil
	})
}
