package bridge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/market"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

// Outbound errors.
var (
	ErrSameChain       = errors.New("destination is the local ledger")
	ErrTokenListed     = errors.New("cannot bridge a listed token")
	ErrInsufficientFee = errors.New("attached fee below channel estimate")
	ErrChannelSubmit   = errors.New("channel submission failed")
)

var (
	prefixNonce  = []byte("bn/") // bn/<dst(4)> -> next nonce (u64 BE)
	prefixOutbox = []byte("bo/") // bo/<dst(4)><nonce(8)> -> outboxEntry JSON
)

// outboxEntry records a burned-and-encoded message until submission
// succeeds. Entries that outlive Send mark tokens debited but not yet
// handed to the channel.
type outboxEntry struct {
	Payload []byte `json:"payload"`
	Fee     uint64 `json:"fee"`
}

// Outbound debits tokens from the local ledger and hands their payloads
// to the messaging channel.
type Outbound struct {
	mu sync.Mutex // Call guard.

	db      storage.DB
	tokens  *token.Store
	market  *market.Market
	bank    bank.Bank
	channel Channel
	fees    FeeEstimator
	bus     *event.Bus

	// Collected channel fees accumulate here, ready for an operator
	// sweep or relayer payout.
	feeAcct types.Address
}

// NewOutbound builds the outbound half of the bridge.
func NewOutbound(db storage.DB, tokens *token.Store, mkt *market.Market, bk bank.Bank, ch Channel, fees FeeEstimator, bus *event.Bus) *Outbound {
	return &Outbound{
		db:      db,
		tokens:  tokens,
		market:  mkt,
		bank:    bk,
		channel: ch,
		fees:    fees,
		bus:     bus,
		feeAcct: crypto.BridgeFeeAddress(tokens.ChainTag()),
	}
}

// FeeAccount returns the account accumulating collected channel fees.
func (o *Outbound) FeeAccount() types.Address {
	return o.feeAcct
}

// SendToken burns a token locally and submits its payload to the
// channel for reconstruction on the destination ledger. Returns the
// message nonce. The attached fee must cover the channel estimate and
// is debited from the caller into the ledger's bridge fee account.
//
// The burn commits before submission: there is no atomic cross-ledger
// transaction, so the token is gone from this ledger the moment the
// debit lands, whatever the channel does afterwards. A submission
// failure leaves the message in the outbox for RetrySubmit.
func (o *Outbound) SendToken(ctx context.Context, caller types.Address, id types.TokenID, dstChainTag uint32, attachedFee uint64) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Checks.
	if dstChainTag == o.tokens.ChainTag() {
		return 0, ErrSameChain
	}
	rec, err := o.tokens.Get(id)
	if err != nil {
		return 0, err
	}
	if rec.Owner != caller {
		return 0, token.ErrUnauthorized
	}
	if o.market.IsListed(id) {
		return 0, ErrTokenListed
	}

	// Capture metadata before any mutation.
	payload, err := EncodeMessage(&Message{
		Owner:           caller,
		TokenID:         id,
		URI:             rec.URI,
		RoyaltyReceiver: rec.RoyaltyReceiver,
		RoyaltyBps:      rec.RoyaltyBps,
	})
	if err != nil {
		return 0, err
	}

	required := o.fees.EstimateFee(dstChainTag, len(payload))
	if attachedFee < required {
		return 0, fmt.Errorf("%w: attached %d, need %d", ErrInsufficientFee, attachedFee, required)
	}

	// Collect the fee up front. It stays collected once the burn lands:
	// a submission failure parks the message in the outbox, and the
	// retry rides the original payment.
	if err := o.bank.Transfer(caller, o.feeAcct, attachedFee); err != nil {
		return 0, fmt.Errorf("collect channel fee: %w", err)
	}
	refundFee := func() { o.bank.Transfer(o.feeAcct, caller, attachedFee) }

	nonce, err := o.nextNonce(dstChainTag)
	if err != nil {
		refundFee()
		return 0, err
	}

	// Debit: the burn is the point of no return.
	entry, err := json.Marshal(outboxEntry{Payload: payload, Fee: attachedFee})
	if err != nil {
		refundFee()
		return 0, fmt.Errorf("outbox marshal: %w", err)
	}
	if err := o.db.Put(outboxKey(dstChainTag, nonce), entry); err != nil {
		refundFee()
		return 0, err
	}
	if err := o.tokens.Burn(id); err != nil {
		o.db.Delete(outboxKey(dstChainTag, nonce))
		refundFee()
		return 0, err
	}

	if err := o.channel.Submit(ctx, dstChainTag, nonce, payload, attachedFee); err != nil {
		// Token is burned; the outbox entry keeps the message for retry.
		klog.Bridge.Error().
			Stringer("token", id).
			Uint32("dst", dstChainTag).
			Uint64("nonce", nonce).
			Err(err).
			Msg("submit failed after burn")
		return nonce, fmt.Errorf("%w: %v", ErrChannelSubmit, err)
	}
	if err := o.db.Delete(outboxKey(dstChainTag, nonce)); err != nil {
		return nonce, err
	}

	o.bus.Emit(event.TypeTokenBridged, event.TokenBridged{
		TokenID:     id,
		Owner:       caller,
		DstChainTag: dstChainTag,
		Nonce:       nonce,
		Fee:         attachedFee,
	})
	klog.Bridge.Info().
		Stringer("token", id).
		Uint32("dst", dstChainTag).
		Uint64("nonce", nonce).
		Msg("token bridged out")
	return nonce, nil
}

// RetrySubmit re-submits an outbox entry whose original submission
// failed after the burn. Admin-triggered.
func (o *Outbound) RetrySubmit(ctx context.Context, dstChainTag uint32, nonce uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	data, err := o.db.Get(outboxKey(dstChainTag, nonce))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no pending outbox entry for dst %d nonce %d", dstChainTag, nonce)
	}
	if err != nil {
		return err
	}
	var entry outboxEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("outbox unmarshal: %w", err)
	}

	if err := o.channel.Submit(ctx, dstChainTag, nonce, entry.Payload, entry.Fee); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelSubmit, err)
	}
	return o.db.Delete(outboxKey(dstChainTag, nonce))
}

// PendingOutbox lists messages burned locally but not yet accepted by
// the channel.
func (o *Outbound) PendingOutbox() ([]PendingMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []PendingMessage
	err := o.db.ForEach(prefixOutbox, func(key, value []byte) error {
		if len(key) != len(prefixOutbox)+12 {
			return nil // Malformed key, skip.
		}
		var entry outboxEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil // Skip corrupt entries.
		}
		out = append(out, PendingMessage{
			DstChainTag: binary.BigEndian.Uint32(key[len(prefixOutbox):]),
			Nonce:       binary.BigEndian.Uint64(key[len(prefixOutbox)+4:]),
			Payload:     entry.Payload,
			Fee:         entry.Fee,
		})
		return nil
	})
	return out, err
}

// PendingMessage describes one stuck outbox entry.
type PendingMessage struct {
	DstChainTag uint32 `json:"dstChainTag"`
	Nonce       uint64 `json:"nonce"`
	Payload     []byte `json:"payload"`
	Fee         uint64 `json:"fee"`
}

// nextNonce allocates the next per-destination message nonce.
func (o *Outbound) nextNonce(dst uint32) (uint64, error) {
	key := nonceKey(dst)
	var next uint64 = 1
	data, err := o.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	case len(data) != 8:
		return 0, fmt.Errorf("corrupt nonce record for dst %d", dst)
	default:
		next = binary.BigEndian.Uint64(data) + 1
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := o.db.Put(key, buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

func nonceKey(dst uint32) []byte {
	key := make([]byte, len(prefixNonce)+4)
	copy(key, prefixNonce)
	binary.BigEndian.PutUint32(key[len(prefixNonce):], dst)
	return key
}

func outboxKey(dst uint32, nonce uint64) []byte {
	key := make([]byte, len(prefixOutbox)+12)
	copy(key, prefixOutbox)
	binary.BigEndian.PutUint32(key[len(prefixOutbox):], dst)
	binary.BigEndian.PutUint64(key[len(prefixOutbox)+4:], nonce)
	return key
}
