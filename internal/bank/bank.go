// Package bank tracks account balances for marketplace settlement.
//
// The marketplace never holds funds itself; it moves value between
// accounts through this collaborator. Settlement code treats any
// Transfer failure as an external-transfer fault and rolls back.
package bank

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// Bank errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAddress       = errors.New("zero address")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// Bank is the value-transfer interface used by settlement.
type Bank interface {
	// BalanceOf returns the balance of an account (0 for unknown accounts).
	BalanceOf(addr types.Address) (uint64, error)
	// Deposit credits an account.
	Deposit(addr types.Address, amount uint64) error
	// Transfer moves value between accounts. Fails with
	// ErrInsufficientFunds when from cannot cover amount.
	Transfer(from, to types.Address, amount uint64) error
}

var prefixAccount = []byte("a/") // a/<address(20)> -> balance (u64 BE)

// LedgerBank implements Bank on top of a key-value store.
type LedgerBank struct {
	db storage.DB
}

// NewLedger creates a DB-backed bank.
func NewLedger(db storage.DB) *LedgerBank {
	return &LedgerBank{db: db}
}

// BalanceOf returns the balance of an account.
func (b *LedgerBank) BalanceOf(addr types.Address) (uint64, error) {
	data, err := b.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bank get: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt balance record for %s", addr)
	}
	return binary.BigEndian.Uint64(data), nil
}

// Deposit credits an account.
func (b *LedgerBank) Deposit(addr types.Address, amount uint64) error {
	if addr.IsZero() {
		return ErrZeroAddress
	}
	bal, err := b.BalanceOf(addr)
	if err != nil {
		return err
	}
	if bal+amount < bal {
		return fmt.Errorf("%w: crediting %s", ErrBalanceOverflow, addr)
	}
	return b.setBalance(addr, bal+amount)
}

// Transfer moves value between accounts.
func (b *LedgerBank) Transfer(from, to types.Address, amount uint64) error {
	if to.IsZero() {
		return ErrZeroAddress
	}
	if amount == 0 {
		return nil
	}
	fromBal, err := b.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, fromBal, amount)
	}
	// Self-transfer: both sides net to the starting balance. Writing the
	// debit and the credit from the same read would double the amount.
	if from == to {
		return nil
	}
	toBal, err := b.BalanceOf(to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("%w: crediting %s", ErrBalanceOverflow, to)
	}
	if err := b.setBalance(from, fromBal-amount); err != nil {
		return err
	}
	return b.setBalance(to, toBal+amount)
}

func (b *LedgerBank) setBalance(addr types.Address, amount uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return b.db.Put(accountKey(addr), buf[:])
}

func accountKey(addr types.Address) []byte {
	key := make([]byte, len(prefixAccount)+types.AddressSize)
	copy(key, prefixAccount)
	copy(key[len(prefixAccount):], addr[:])
	return key
}
