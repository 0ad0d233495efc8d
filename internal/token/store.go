package token

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

var (
	prefixToken = []byte("t/") // t/<tokenID(32)> -> Record JSON
	prefixOwner = []byte("o/") // o/<address(20)><tokenID(32)> -> nil, ownership index
	keyCounter  = []byte("n/counter")
)

// Store persists token records for one ledger instance.
type Store struct {
	db       storage.DB
	chainTag uint32

	mu      sync.Mutex
	counter uint64 // Last allocated local counter.
}

// NewStore opens a token store for the given chain tag, restoring the
// allocation counter from storage.
func NewStore(db storage.DB, chainTag uint32) (*Store, error) {
	s := &Store{db: db, chainTag: chainTag}

	data, err := db.Get(keyCounter)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Fresh ledger, counter starts at zero.
	case err != nil:
		return nil, fmt.Errorf("load token counter: %w", err)
	case len(data) != 8:
		return nil, fmt.Errorf("corrupt token counter record")
	default:
		s.counter = binary.BigEndian.Uint64(data)
	}
	return s, nil
}

// ChainTag returns the chain tag this store allocates ids under.
func (s *Store) ChainTag() uint32 {
	return s.chainTag
}

// Mint creates a new token owned by owner with the given URI and returns
// its freshly allocated identifier.
func (s *Store) Mint(owner types.Address, uri string) (types.TokenID, error) {
	if owner.IsZero() {
		return types.TokenID{}, ErrZeroOwner
	}
	if uri == "" {
		return types.TokenID{}, ErrInvalidURI
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter == ^uint64(0) {
		return types.TokenID{}, ErrCounterOverflow
	}
	next := s.counter + 1
	id := types.PackTokenID(s.chainTag, next)

	// Persist counter before the record: a crash between the two writes
	// costs one id, never a duplicate.
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Put(keyCounter, buf[:]); err != nil {
		return types.TokenID{}, fmt.Errorf("persist token counter: %w", err)
	}
	s.counter = next

	if err := s.put(id, &Record{Owner: owner, URI: uri}); err != nil {
		return types.TokenID{}, err
	}

	klog.Token.Debug().Stringer("token", id).Stringer("owner", owner).Msg("minted")
	return id, nil
}

// MintWithID re-creates a token under an identifier allocated elsewhere.
// This is the bridge credit path; it fails with ErrAlreadyExists if the
// id is already live on this ledger.
func (s *Store) MintWithID(id types.TokenID, owner types.Address, uri string) error {
	if owner.IsZero() {
		return ErrZeroOwner
	}
	if uri == "" {
		return ErrInvalidURI
	}
	exists, err := s.Exists(id)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	if err := s.put(id, &Record{Owner: owner, URI: uri}); err != nil {
		return err
	}
	klog.Token.Debug().Stringer("token", id).Stringer("owner", owner).Msg("credited")
	return nil
}

// Burn removes a token from this ledger.
func (s *Store) Burn(id types.TokenID) error {
	exists, err := s.Exists(id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(tokenKey(id)); err != nil {
		return fmt.Errorf("token delete: %w", err)
	}
	if err := s.db.Delete(ownerKey(rec.Owner, id)); err != nil {
		return fmt.Errorf("owner index delete: %w", err)
	}
	klog.Token.Debug().Stringer("token", id).Msg("burned")
	return nil
}

// Transfer moves ownership of a token. Fails with ErrUnauthorized if
// from does not match the recorded owner.
func (s *Store) Transfer(id types.TokenID, from, to types.Address) error {
	if to.IsZero() {
		return ErrZeroOwner
	}
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if rec.Owner != from {
		return ErrUnauthorized
	}
	rec.Owner = to
	return s.put(id, rec)
}

// SetRoyalty records the royalty configuration for a token.
func (s *Store) SetRoyalty(id types.TokenID, receiver types.Address, bps uint16) error {
	if bps > MaxRoyaltyBps {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRoyalty, bps, MaxRoyaltyBps)
	}
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	rec.RoyaltyReceiver = receiver
	rec.RoyaltyBps = bps
	return s.put(id, rec)
}

// Exists checks whether a token is live on this ledger.
func (s *Store) Exists(id types.TokenID) (bool, error) {
	return s.db.Has(tokenKey(id))
}

// OwnerOf returns the recorded owner of a token.
func (s *Store) OwnerOf(id types.TokenID) (types.Address, error) {
	rec, err := s.Get(id)
	if err != nil {
		return types.Address{}, err
	}
	return rec.Owner, nil
}

// Get retrieves the full record of a token.
func (s *Store) Get(id types.TokenID) (*Record, error) {
	data, err := s.db.Get(tokenKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &rec, nil
}

// ForEach iterates over all live tokens on this ledger.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(types.TokenID, *Record) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		if len(key) != len(prefixToken)+types.TokenIDSize {
			return nil // Malformed key, skip.
		}
		var id types.TokenID
		copy(id[:], key[len(prefixToken):])

		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(id, &rec)
	})
}

// ForEachOwnedBy iterates over the tokens owned by addr, in id order.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEachOwnedBy(owner types.Address, fn func(types.TokenID) error) error {
	prefix := make([]byte, len(prefixOwner)+types.AddressSize)
	copy(prefix, prefixOwner)
	copy(prefix[len(prefixOwner):], owner[:])

	return s.db.ForEach(prefix, func(key, value []byte) error {
		if len(key) != len(prefix)+types.TokenIDSize {
			return nil // Malformed key, skip.
		}
		var id types.TokenID
		copy(id[:], key[len(prefix):])
		return fn(id)
	})
}

// put writes the record and keeps the ownership index in sync.
func (s *Store) put(id types.TokenID, rec *Record) error {
	if old, err := s.Get(id); err == nil && old.Owner != rec.Owner {
		if err := s.db.Delete(ownerKey(old.Owner, id)); err != nil {
			return fmt.Errorf("owner index delete: %w", err)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	if err := s.db.Put(tokenKey(id), data); err != nil {
		return err
	}
	return s.db.Put(ownerKey(rec.Owner, id), nil)
}

func tokenKey(id types.TokenID) []byte {
	key := make([]byte, len(prefixToken)+types.TokenIDSize)
	copy(key, prefixToken)
	copy(key[len(prefixToken):], id[:])
	return key
}

func ownerKey(owner types.Address, id types.TokenID) []byte {
	key := make([]byte, len(prefixOwner)+types.AddressSize+types.TokenIDSize)
	copy(key, prefixOwner)
	copy(key[len(prefixOwner):], owner[:])
	copy(key[len(prefixOwner)+types.AddressSize:], id[:])
	return key
}
