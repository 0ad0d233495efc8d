package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

// ErrNoFailedMessage reports a recovery retry for an unknown (src, nonce).
var ErrNoFailedMessage = errors.New("no failed message recorded")

// FailedMessage is one parked inbound payload awaiting operator action.
type FailedMessage struct {
	SrcChainTag uint32 `json:"srcChainTag"`
	Nonce       uint64 `json:"nonce"`
	Payload     []byte `json:"payload"`
}

// FailedMessages lists parked inbound payloads, oldest source first.
func (in *Inbound) FailedMessages() ([]FailedMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var out []FailedMessage
	err := in.db.ForEach(prefixFailed, func(key, value []byte) error {
		if len(key) != len(prefixFailed)+12 {
			return nil // Malformed key, skip.
		}
		out = append(out, FailedMessage{
			SrcChainTag: binary.BigEndian.Uint32(key[len(prefixFailed):]),
			Nonce:       binary.BigEndian.Uint64(key[len(prefixFailed)+4:]),
			Payload:     append([]byte(nil), value...),
		})
		return nil
	})
	return out, err
}

// RetryFailed replays a parked payload through the credit path.
// Operator-triggered, typically after the blocking condition (a colliding
// token id, a since-raised royalty cap) has been cleared. The parked
// record is removed only on success.
func (in *Inbound) RetryFailed(srcChainTag uint32, nonce uint64) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	fkey := failedKey(srcChainTag, nonce)
	payload, err := in.db.Get(fkey)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: src %d nonce %d", ErrNoFailedMessage, srcChainTag, nonce)
	}
	if err != nil {
		return err
	}

	if err := in.credit(srcChainTag, nonce, payload); err != nil {
		return err
	}
	return in.db.Delete(fkey)
}
