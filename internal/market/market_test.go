package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

var (
	admin = types.Address{0xAD}
	alice = types.Address{0x01}
	bob   = types.Address{0x02}
	carol = types.Address{0x03}
)

type fixture struct {
	db     *storage.MemoryDB
	tokens *token.Store
	bank   *bank.LedgerBank
	market *Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemory()
	tokens, err := token.NewStore(db, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	bk := bank.NewLedger(db)
	m, err := New(db, tokens, bk, event.NewBus(), admin)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{db: db, tokens: tokens, bank: bk, market: m}
}

// createListed mints a token for alice and lists it at price.
func (f *fixture) createListed(t *testing.T, price uint64) types.TokenID {
	t.Helper()
	id, err := f.market.CreateToken(alice, "ipfs://item", price, types.Address{}, 0)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := f.market.Approve(alice, id); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := f.market.ListToken(alice, id, price); err != nil {
		t.Fatalf("ListToken: %v", err)
	}
	return id
}

func TestCreateToken_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		uri     string
		price   uint64
		bps     uint16
		wantErr error
	}{
		{"zero price", "ipfs://x", 0, 0, ErrInvalidPrice},
		{"price above max", "ipfs://x", MaxPrice + 1, 0, ErrInvalidPrice},
		{"royalty above max", "ipfs://x", 100, token.MaxRoyaltyBps + 1, token.ErrInvalidRoyalty},
		{"empty uri", "", 100, 0, token.ErrInvalidURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.market.CreateToken(alice, tt.uri, tt.price, carol, tt.bps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateToken_StartsUnlisted(t *testing.T) {
	f := newFixture(t)

	id, err := f.market.CreateToken(alice, "ipfs://x", 100, carol, 500)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if f.market.IsListed(id) {
		t.Error("fresh token must be Unlisted")
	}
	owner, _ := f.tokens.OwnerOf(id)
	if owner != alice {
		t.Errorf("owner = %s, want %s", owner, alice)
	}
	rec, _ := f.tokens.Get(id)
	if rec.RoyaltyReceiver != carol || rec.RoyaltyBps != 500 {
		t.Errorf("royalty = %s/%d, want %s/500", rec.RoyaltyReceiver, rec.RoyaltyBps, carol)
	}
}

func TestListToken_RequiresApproval(t *testing.T) {
	f := newFixture(t)
	id, _ := f.market.CreateToken(alice, "ipfs://x", 100, types.Address{}, 0)

	if err := f.market.ListToken(alice, id, 100); !errors.Is(err, ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
}

func TestListToken_MovesCustodyToEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	owner, _ := f.tokens.OwnerOf(id)
	if owner != f.market.Escrow() {
		t.Errorf("owner = %s, want escrow %s", owner, f.market.Escrow())
	}
	if !f.market.IsListed(id) {
		t.Error("token must be Listed")
	}
}

func TestListToken_Rejections(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	// Already listed.
	if err := f.market.ListToken(alice, id, 100); !errors.Is(err, ErrAlreadyListed) {
		t.Errorf("relist: err = %v, want ErrAlreadyListed", err)
	}

	// Not the owner.
	id2, _ := f.market.CreateToken(alice, "ipfs://y", 100, types.Address{}, 0)
	if err := f.market.ListToken(bob, id2, 100); !errors.Is(err, token.ErrUnauthorized) {
		t.Errorf("non-owner: err = %v, want ErrUnauthorized", err)
	}

	// Bad price.
	f.market.Approve(alice, id2)
	if err := f.market.ListToken(alice, id2, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}

	// Unknown token.
	if err := f.market.ListToken(alice, types.PackTokenID(1, 999), 100); !errors.Is(err, token.ErrNotFound) {
		t.Errorf("unknown token: err = %v, want ErrNotFound", err)
	}
}

func TestApproval_IsConsumedByListing(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	if err := f.market.CancelListing(alice, id); err != nil {
		t.Fatalf("CancelListing: %v", err)
	}
	// Approval was consumed by the first listing; relisting needs a new one.
	if err := f.market.ListToken(alice, id, 100); !errors.Is(err, ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	if err := f.market.CancelListing(bob, id); !errors.Is(err, ErrNotSeller) {
		t.Errorf("non-seller cancel: err = %v, want ErrNotSeller", err)
	}

	if err := f.market.CancelListing(alice, id); err != nil {
		t.Fatalf("CancelListing: %v", err)
	}
	if f.market.IsListed(id) {
		t.Error("token must be Unlisted after cancel")
	}
	owner, _ := f.tokens.OwnerOf(id)
	if owner != alice {
		t.Errorf("owner = %s, want %s", owner, alice)
	}

	if err := f.market.CancelListing(alice, id); !errors.Is(err, ErrNotListed) {
		t.Errorf("double cancel: err = %v, want ErrNotListed", err)
	}
}

func TestCancelThenRelist_FreshState(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	f.market.CancelListing(alice, id)
	f.market.Approve(alice, id)
	if err := f.market.ListToken(alice, id, 250); err != nil {
		t.Fatalf("relist: %v", err)
	}

	item, err := f.market.GetMarketItem(id)
	if err != nil {
		t.Fatalf("GetMarketItem: %v", err)
	}
	if !item.Listed || item.Price != 250 || item.Seller != alice {
		t.Errorf("item = %+v, want listed at 250 by alice", item)
	}

	// No residual seller-index entries from the prior listing.
	listed, _ := f.market.FetchItemsListed(alice)
	if len(listed) != 1 {
		t.Errorf("seller index has %d entries, want 1", len(listed))
	}
}

func TestUpdateTokenPrice(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)

	if err := f.market.UpdateTokenPrice(bob, id, 200); !errors.Is(err, ErrNotSeller) {
		t.Errorf("non-seller: err = %v, want ErrNotSeller", err)
	}
	if err := f.market.UpdateTokenPrice(alice, id, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}

	if err := f.market.UpdateTokenPrice(alice, id, 200); err != nil {
		t.Fatalf("UpdateTokenPrice: %v", err)
	}
	item, _ := f.market.GetMarketItem(id)
	if item.Price != 200 {
		t.Errorf("price = %d, want 200", item.Price)
	}

	// Price index moved with the update.
	items, _ := f.market.FetchItemsByPrice(150, 250, 0)
	if len(items) != 1 || items[0].TokenID != id {
		t.Errorf("price range query = %v, want [%s]", items, id)
	}
	items, _ = f.market.FetchItemsByPrice(50, 150, 0)
	if len(items) != 0 {
		t.Errorf("old price range query = %v, want empty", items)
	}
}

func TestSetRoyaltyInfo_OnlyUnlistedOwner(t *testing.T) {
	f := newFixture(t)
	id, _ := f.market.CreateToken(alice, "ipfs://x", 100, types.Address{}, 0)

	if err := f.market.SetRoyaltyInfo(bob, id, carol, 100); !errors.Is(err, token.ErrUnauthorized) {
		t.Errorf("non-owner: err = %v, want ErrUnauthorized", err)
	}
	if err := f.market.SetRoyaltyInfo(alice, id, carol, 100); err != nil {
		t.Fatalf("SetRoyaltyInfo: %v", err)
	}

	f.market.Approve(alice, id)
	f.market.ListToken(alice, id, 100)
	if err := f.market.SetRoyaltyInfo(alice, id, carol, 200); !errors.Is(err, ErrAlreadyListed) {
		t.Errorf("listed: err = %v, want ErrAlreadyListed", err)
	}
}

func TestSetFeeBps(t *testing.T) {
	f := newFixture(t)

	if err := f.market.SetFeeBps(alice, 300); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("non-admin: err = %v, want ErrNotAdmin", err)
	}
	if err := f.market.SetFeeBps(admin, MaxFeeBps+1); !errors.Is(err, ErrInvalidFeeBps) {
		t.Errorf("over max: err = %v, want ErrInvalidFeeBps", err)
	}
	if err := f.market.SetFeeBps(admin, 300); err != nil {
		t.Fatalf("SetFeeBps: %v", err)
	}
	if got := f.market.GetMarketplaceStats().FeeBps; got != 300 {
		t.Errorf("fee bps = %d, want 300", got)
	}
}

func TestMarket_RestoresStateFromStorage(t *testing.T) {
	f := newFixture(t)
	id := f.createListed(t, 100)
	f.market.SetFeeBps(admin, 500)

	// Reopen over the same storage.
	tokens, err := token.NewStore(f.db, 1)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reopened, err := New(f.db, tokens, f.bank, event.NewBus(), admin)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !reopened.IsListed(id) {
		t.Error("listing must survive restart")
	}
	stats := reopened.GetMarketplaceStats()
	if stats.FeeBps != 500 || stats.ListedCount != 1 {
		t.Errorf("stats = %+v, want feeBps 500, 1 listed", stats)
	}
	listed, _ := reopened.FetchItemsListed(alice)
	if len(listed) != 1 {
		t.Errorf("seller index has %d entries after restart, want 1", len(listed))
	}
}

func TestFetchMarketItems_Pagination(t *testing.T) {
	for _, total := range []int{0, 1, PageSize, PageSize * 2, PageSize*2 + 7} {
		f2 := newFixture(t)
		ids := make(map[types.TokenID]bool, total)
		for i := 0; i < total; i++ {
			id := f2.createListed(t, uint64(i+1))
			ids[id] = true
		}

		var got []Item
		for page := 0; ; page++ {
			items, err := f2.market.FetchMarketItems(page)
			if err != nil {
				t.Fatalf("FetchMarketItems(%d): %v", page, err)
			}
			if len(items) == 0 {
				break
			}
			if len(items) > PageSize {
				t.Fatalf("page %d has %d items, max %d", page, len(items), PageSize)
			}
			got = append(got, items...)
		}

		if len(got) != total {
			t.Errorf("total=%d: concatenated pages have %d items", total, len(got))
		}
		seen := make(map[types.TokenID]bool, len(got))
		for _, item := range got {
			if seen[item.TokenID] {
				t.Errorf("total=%d: duplicate item %s", total, item.TokenID)
			}
			seen[item.TokenID] = true
			if !ids[item.TokenID] {
				t.Errorf("total=%d: unexpected item %s", total, item.TokenID)
			}
		}
	}
}

func TestFetchMyNFTs(t *testing.T) {
	f := newFixture(t)

	var mine []types.TokenID
	for i := 0; i < 3; i++ {
		id, err := f.market.CreateToken(alice, fmt.Sprintf("ipfs://%d", i), 100, types.Address{}, 0)
		if err != nil {
			t.Fatalf("CreateToken: %v", err)
		}
		mine = append(mine, id)
	}
	f.market.CreateToken(bob, "ipfs://other", 100, types.Address{}, 0)

	items, err := f.market.FetchMyNFTs(alice, 0)
	if err != nil {
		t.Fatalf("FetchMyNFTs: %v", err)
	}
	if len(items) != len(mine) {
		t.Fatalf("got %d items, want %d", len(items), len(mine))
	}
	for _, item := range items {
		if item.Owner != alice {
			t.Errorf("item %s owned by %s, want alice", item.TokenID, item.Owner)
		}
	}

	if items, _ := f.market.FetchMyNFTs(alice, 1); len(items) != 0 {
		t.Errorf("page past end = %v, want empty", items)
	}
}

func TestFetchItemsByPrice_RangeAndOrder(t *testing.T) {
	f := newFixture(t)

	prices := []uint64{500, 100, 300, 200, 400}
	byPrice := make(map[uint64]types.TokenID, len(prices))
	for _, p := range prices {
		id := f.createListed(t, p)
		byPrice[p] = id
	}

	items, err := f.market.FetchItemsByPrice(150, 450, 0)
	if err != nil {
		t.Fatalf("FetchItemsByPrice: %v", err)
	}
	want := []uint64{200, 300, 400}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, p := range want {
		if items[i].Price != p || items[i].TokenID != byPrice[p] {
			t.Errorf("item[%d] = %d/%s, want %d/%s", i, items[i].Price, items[i].TokenID, p, byPrice[p])
		}
	}
}
