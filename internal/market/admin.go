package market

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// SetFeeBps changes the marketplace fee rate. Owner-gated.
func (m *Market) SetFeeBps(caller types.Address, bps uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.owner {
		return ErrNotAdmin
	}
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: %d > %d", ErrInvalidFeeBps, bps, MaxFeeBps)
	}

	old := m.feeBps
	if err := putU64(m.db, keyFeeBps, uint64(bps)); err != nil {
		return err
	}
	m.feeBps = bps

	m.bus.Emit(event.TypeFeeBpsUpdated, event.FeeBpsUpdated{OldBps: old, NewBps: bps})
	klog.Market.Info().Uint16("old", old).Uint16("new", bps).Msg("fee bps updated")
	return nil
}

// WithdrawMarketplaceFees drains the accrued fee ledger to the given
// address. Owner-gated. Returns the amount withdrawn.
func (m *Market) WithdrawMarketplaceFees(caller, to types.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.owner {
		return 0, ErrNotAdmin
	}
	amount := m.fees
	if amount == 0 {
		return 0, nil
	}

	// Zero the ledger before paying out; restore on transfer failure.
	if err := putU64(m.db, keyFees, 0); err != nil {
		return 0, err
	}
	m.fees = 0

	if err := m.bank.Transfer(m.escrow, to, amount); err != nil {
		m.fees = amount
		putU64(m.db, keyFees, amount)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	m.bus.Emit(event.TypeFeesWithdrawn, event.FeesWithdrawn{To: to, Amount: amount})
	klog.Market.Info().Uint64("amount", amount).Stringer("to", to).Msg("fees withdrawn")
	return amount, nil
}

// WithdrawAll sweeps the entire escrow account balance, fee ledger
// included, to the given address. Owner-gated; intended for recovering
// funds stranded by out-of-band failures. Returns the amount swept.
func (m *Market) WithdrawAll(caller, to types.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.owner {
		return 0, ErrNotAdmin
	}
	balance, err := m.bank.BalanceOf(m.escrow)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, nil
	}

	if err := putU64(m.db, keyFees, 0); err != nil {
		return 0, err
	}
	prevFees := m.fees
	m.fees = 0

	if err := m.bank.Transfer(m.escrow, to, balance); err != nil {
		m.fees = prevFees
		putU64(m.db, keyFees, prevFees)
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	m.bus.Emit(event.TypeFeesWithdrawn, event.FeesWithdrawn{To: to, Amount: balance})
	klog.Market.Info().Uint64("amount", balance).Stringer("to", to).Msg("escrow swept")
	return balance, nil
}
