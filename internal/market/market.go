// Package market implements the fixed-price listing marketplace.
//
// Each token moves through a two-state machine, Unlisted and Listed.
// Listing places the token in marketplace escrow custody; a sale or a
// cancellation returns it to Unlisted. All state-mutating operations run
// under a scoped call guard and follow checks-effects-interactions: the
// post-condition state is fully committed before any value leaves the
// escrow account.
package market

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

const (
	// MaxPrice is the highest accepted listing price.
	MaxPrice uint64 = 1_000_000_000_000_000_000

	// MaxFeeBps is the highest marketplace fee rate (10%).
	MaxFeeBps uint16 = 1000

	// DefaultFeeBps is the fee rate applied until the owner changes it (2.5%).
	DefaultFeeBps uint16 = 250

	// BpsDenominator converts basis points to a fraction.
	BpsDenominator uint64 = 10000

	// PageSize is the fixed page size of all query operations.
	PageSize = 50
)

// Marketplace errors.
var (
	ErrInvalidPrice        = errors.New("price out of range")
	ErrInvalidFeeBps       = errors.New("fee bps out of range")
	ErrAlreadyListed       = errors.New("token is already listed")
	ErrNotListed           = errors.New("token is not listed")
	ErrNotSeller           = errors.New("caller is not the listing seller")
	ErrNotApproved         = errors.New("marketplace not approved to move token")
	ErrNotAdmin            = errors.New("caller is not the marketplace owner")
	ErrInsufficientPayment = errors.New("payment below listing price")
	ErrTransferFailed      = errors.New("value transfer failed")
)

var (
	prefixListing  = []byte("l/")  // l/<tokenID(32)> -> Listing JSON
	prefixPriceIdx = []byte("lp/") // lp/<price(8 BE)><tokenID(32)> -> nil
	prefixApproval = []byte("ap/") // ap/<tokenID(32)> -> approver address
	keyFees        = []byte("f/fees")
	keySold        = []byte("f/sold")
	keyFeeBps      = []byte("f/feebps")
)

// Listing is the persisted state of one active listing.
type Listing struct {
	Seller types.Address `json:"seller"`
	Price  uint64        `json:"price"`
}

// Market owns the listing lifecycle, fee and royalty computation, and
// the escrow relationship for one ledger instance.
type Market struct {
	mu sync.RWMutex // Call guard: one state-mutating call at a time.

	db     storage.DB
	tokens *token.Store
	bank   bank.Bank
	bus    *event.Bus

	owner  types.Address // Admin identity for owner-gated operations.
	escrow types.Address

	feeBps uint16
	fees   uint64 // Accrued, not yet withdrawn marketplace fees.
	sold   uint64

	listed *listedIndex
}

// New builds a marketplace over the given collaborators, restoring fee
// state and listing indices from storage.
func New(db storage.DB, tokens *token.Store, bk bank.Bank, bus *event.Bus, owner types.Address) (*Market, error) {
	m := &Market{
		db:     db,
		tokens: tokens,
		bank:   bk,
		bus:    bus,
		owner:  owner,
		escrow: crypto.EscrowAddress(tokens.ChainTag()),
		feeBps: DefaultFeeBps,
		listed: newListedIndex(),
	}

	if v, ok, err := getU64(db, keyFeeBps); err != nil {
		return nil, err
	} else if ok {
		if v > uint64(MaxFeeBps) {
			return nil, fmt.Errorf("corrupt fee bps record: %d", v)
		}
		m.feeBps = uint16(v)
	}
	if v, _, err := getU64(db, keyFees); err != nil {
		return nil, err
	} else {
		m.fees = v
	}
	if v, _, err := getU64(db, keySold); err != nil {
		return nil, err
	} else {
		m.sold = v
	}

	if err := m.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("rebuild listing index: %w", err)
	}

	klog.Market.Info().
		Uint32("chain_tag", tokens.ChainTag()).
		Stringer("escrow", m.escrow).
		Int("listed", m.listed.count()).
		Msg("marketplace ready")
	return m, nil
}

// Escrow returns the marketplace custody address.
func (m *Market) Escrow() types.Address {
	return m.escrow
}

// CreateToken mints a new token owned by the caller and records its
// royalty configuration. The token starts Unlisted; price is validated
// and carried on the creation record for indexers.
func (m *Market) CreateToken(caller types.Address, uri string, price uint64, royaltyReceiver types.Address, royaltyBps uint16) (types.TokenID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validatePrice(price); err != nil {
		return types.TokenID{}, err
	}
	if royaltyBps > token.MaxRoyaltyBps {
		return types.TokenID{}, fmt.Errorf("%w: %d > %d", token.ErrInvalidRoyalty, royaltyBps, token.MaxRoyaltyBps)
	}

	id, err := m.tokens.Mint(caller, uri)
	if err != nil {
		return types.TokenID{}, err
	}
	if !royaltyReceiver.IsZero() {
		if err := m.tokens.SetRoyalty(id, royaltyReceiver, royaltyBps); err != nil {
			return types.TokenID{}, err
		}
	}

	m.bus.Emit(event.TypeTokenCreated, event.TokenCreated{
		TokenID:         id,
		Creator:         caller,
		URI:             uri,
		Price:           price,
		RoyaltyReceiver: royaltyReceiver,
		RoyaltyBps:      royaltyBps,
	})
	return id, nil
}

// Approve authorizes the marketplace to take custody of the caller's
// token. Listing consumes the approval.
func (m *Market) Approve(caller types.Address, id types.TokenID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return token.ErrUnauthorized
	}
	return m.db.Put(approvalKey(id), caller.Bytes())
}

// ListToken transitions a token from Unlisted to Listed, moving custody
// to the marketplace escrow address.
func (m *Market) ListToken(caller types.Address, id types.TokenID, price uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validatePrice(price); err != nil {
		return err
	}
	if m.listed.contains(id) {
		return ErrAlreadyListed
	}
	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return token.ErrUnauthorized
	}
	approver, err := m.db.Get(approvalKey(id))
	if err != nil || string(approver) != string(caller.Bytes()) {
		return ErrNotApproved
	}

	if err := m.tokens.Transfer(id, caller, m.escrow); err != nil {
		return fmt.Errorf("escrow transfer: %w", err)
	}
	if err := m.db.Delete(approvalKey(id)); err != nil {
		return err
	}
	if err := m.putListing(id, &Listing{Seller: caller, Price: price}); err != nil {
		return err
	}
	m.listed.add(id, caller)

	m.bus.Emit(event.TypeTokenListed, event.TokenListed{TokenID: id, Seller: caller, Price: price})
	klog.Market.Info().Stringer("token", id).Uint64("price", price).Msg("listed")
	return nil
}

// CancelListing retracts an active listing and returns custody to the seller.
func (m *Market) CancelListing(caller types.Address, id types.TokenID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lst, err := m.getListing(id)
	if err != nil {
		return err
	}
	if lst.Seller != caller {
		return ErrNotSeller
	}

	if err := m.removeListing(id, lst); err != nil {
		return err
	}
	if err := m.tokens.Transfer(id, m.escrow, lst.Seller); err != nil {
		return fmt.Errorf("escrow release: %w", err)
	}

	m.bus.Emit(event.TypeListingCancelled, event.ListingCancelled{TokenID: id, Seller: caller})
	klog.Market.Info().Stringer("token", id).Msg("listing cancelled")
	return nil
}

// UpdateTokenPrice reprices an active listing.
func (m *Market) UpdateTokenPrice(caller types.Address, id types.TokenID, newPrice uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validatePrice(newPrice); err != nil {
		return err
	}
	lst, err := m.getListing(id)
	if err != nil {
		return err
	}
	if lst.Seller != caller {
		return ErrNotSeller
	}

	oldPrice := lst.Price
	if err := m.db.Delete(priceIdxKey(oldPrice, id)); err != nil {
		return err
	}
	lst.Price = newPrice
	if err := m.putListing(id, lst); err != nil {
		return err
	}

	m.bus.Emit(event.TypeTokenPriceUpdated, event.TokenPriceUpdated{TokenID: id, OldPrice: oldPrice, NewPrice: newPrice})
	return nil
}

// SetRoyaltyInfo updates a token's royalty configuration. Only the
// current owner of an unlisted token may change it; the config rides
// through sales and cross-chain transfers.
func (m *Market) SetRoyaltyInfo(caller types.Address, id types.TokenID, receiver types.Address, bps uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listed.contains(id) {
		return ErrAlreadyListed
	}
	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return token.ErrUnauthorized
	}
	if err := m.tokens.SetRoyalty(id, receiver, bps); err != nil {
		return err
	}

	m.bus.Emit(event.TypeRoyaltyInfoUpdated, event.RoyaltyInfoUpdated{TokenID: id, Receiver: receiver, Bps: bps})
	return nil
}

// IsListed reports whether a token has an active listing.
func (m *Market) IsListed(id types.TokenID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listed.contains(id)
}

func validatePrice(price uint64) error {
	if price == 0 || price > MaxPrice {
		return fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	return nil
}

// putListing writes the listing record and its price index entry.
func (m *Market) putListing(id types.TokenID, lst *Listing) error {
	data, err := json.Marshal(lst)
	if err != nil {
		return fmt.Errorf("listing marshal: %w", err)
	}
	if err := m.db.Put(listingKey(id), data); err != nil {
		return err
	}
	return m.db.Put(priceIdxKey(lst.Price, id), nil)
}

// removeListing deletes the record, the price index entry and the
// in-memory index entries.
func (m *Market) removeListing(id types.TokenID, lst *Listing) error {
	if err := m.db.Delete(listingKey(id)); err != nil {
		return err
	}
	if err := m.db.Delete(priceIdxKey(lst.Price, id)); err != nil {
		return err
	}
	m.listed.remove(id, lst.Seller)
	return nil
}

func (m *Market) getListing(id types.TokenID) (*Listing, error) {
	data, err := m.db.Get(listingKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotListed
	}
	if err != nil {
		return nil, fmt.Errorf("listing get: %w", err)
	}
	var lst Listing
	if err := json.Unmarshal(data, &lst); err != nil {
		return nil, fmt.Errorf("listing unmarshal: %w", err)
	}
	return &lst, nil
}

func listingKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixListing)+types.TokenIDSize)
	copy(key, prefixListing)
	copy(key[len(prefixListing):], id[:])
	return key
}

func priceIdxKey(price uint64, id types.TokenID) []byte {
	key := make([]byte, len(prefixPriceIdx)+8+types.TokenIDSize)
	copy(key, prefixPriceIdx)
	binary.BigEndian.PutUint64(key[len(prefixPriceIdx):], price)
	copy(key[len(prefixPriceIdx)+8:], id[:])
	return key
}

func approvalKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixApproval)+types.TokenIDSize)
	copy(key, prefixApproval)
	copy(key[len(prefixApproval):], id[:])
	return key
}

func getU64(db storage.DB, key []byte) (uint64, bool, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("corrupt counter record %q", key)
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func putU64(db storage.DB, key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return db.Put(key, buf[:])
}
