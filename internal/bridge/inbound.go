package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
)

// Inbound errors.
var (
	ErrDuplicateMessage = errors.New("message already delivered")
	ErrRoyaltyTooHigh   = errors.New("payload royalty exceeds ledger cap")
)

var (
	prefixDelivered = []byte("bd/") // bd/<src(4)><nonce(8)> -> nil, dedup marker
	prefixFailed    = []byte("bf/") // bf/<src(4)><nonce(8)> -> raw payload
)

// Inbound credits bridged tokens onto the local ledger. OnMessage is the
// channel delivery callback; it acknowledges every first delivery,
// parking undecodable or uncreditable payloads in a recovery queue
// instead of bouncing them back to the channel.
type Inbound struct {
	mu sync.Mutex // Call guard.

	db     storage.DB
	tokens *token.Store
	bus    *event.Bus
}

// NewInbound builds the inbound half of the bridge.
func NewInbound(db storage.DB, tokens *token.Store, bus *event.Bus) *Inbound {
	return &Inbound{db: db, tokens: tokens, bus: bus}
}

// OnMessage handles one channel delivery. Duplicate (src, nonce) pairs
// are acknowledged without effect, so at-least-once channels credit each
// token exactly once.
func (in *Inbound) OnMessage(srcChainTag uint32, nonce uint64, payload []byte) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	dkey := deliveredKey(srcChainTag, nonce)
	seen, err := in.db.Has(dkey)
	if err != nil {
		return err
	}
	if seen {
		klog.Bridge.Debug().
			Uint32("src", srcChainTag).
			Uint64("nonce", nonce).
			Msg("duplicate delivery ignored")
		return nil
	}

	if err := in.credit(srcChainTag, nonce, payload); err != nil {
		// The token was already burned at the source; bouncing the
		// delivery cannot bring it back. Park the payload for an
		// operator retry and acknowledge.
		klog.Bridge.Error().
			Uint32("src", srcChainTag).
			Uint64("nonce", nonce).
			Err(err).
			Msg("inbound credit failed, parked for recovery")
		if perr := in.db.Put(failedKey(srcChainTag, nonce), payload); perr != nil {
			return perr
		}
	}

	// Dedup marker is written for failed credits too: the channel's
	// accounting is settled either way.
	return in.db.Put(dkey, nil)
}

// credit decodes and mints. Any error leaves the ledger untouched except
// a mint-then-royalty failure, which Burn unwinds.
func (in *Inbound) credit(srcChainTag uint32, nonce uint64, payload []byte) error {
	msg, err := DecodeMessage(payload)
	if err != nil {
		return err
	}
	if msg.RoyaltyBps > token.MaxRoyaltyBps {
		return fmt.Errorf("%w: %d bps", ErrRoyaltyTooHigh, msg.RoyaltyBps)
	}

	if err := in.tokens.MintWithID(msg.TokenID, msg.Owner, msg.URI); err != nil {
		return err
	}
	if msg.RoyaltyBps > 0 || !msg.RoyaltyReceiver.IsZero() {
		if err := in.tokens.SetRoyalty(msg.TokenID, msg.RoyaltyReceiver, msg.RoyaltyBps); err != nil {
			in.tokens.Burn(msg.TokenID)
			return err
		}
	}

	in.bus.Emit(event.TypeTokenReceived, event.TokenReceived{
		TokenID:     msg.TokenID,
		Owner:       msg.Owner,
		SrcChainTag: srcChainTag,
		Nonce:       nonce,
	})
	klog.Bridge.Info().
		Stringer("token", msg.TokenID).
		Stringer("owner", msg.Owner).
		Uint32("src", srcChainTag).
		Uint64("nonce", nonce).
		Msg("token bridged in")
	return nil
}

// Delivered reports whether a (src, nonce) pair has been processed.
func (in *Inbound) Delivered(srcChainTag uint32, nonce uint64) (bool, error) {
	return in.db.Has(deliveredKey(srcChainTag, nonce))
}

func deliveredKey(src uint32, nonce uint64) []byte {
	return msgKey(prefixDelivered, src, nonce)
}

func failedKey(src uint32, nonce uint64) []byte {
	return msgKey(prefixFailed, src, nonce)
}

func msgKey(prefix []byte, src uint32, nonce uint64) []byte {
	key := make([]byte, len(prefix)+12)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], src)
	binary.BigEndian.PutUint64(key[len(prefix)+4:], nonce)
	return key
}
