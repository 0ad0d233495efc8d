package bridge

import (
	"context"
	"sync"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
)

// Channel is the messaging abstraction between ledgers. Submit returns
// once the channel has accepted the message; delivery happens at an
// unspecified later time and is never confirmed to the sender.
type Channel interface {
	Submit(ctx context.Context, dstChainTag uint32, nonce uint64, payload []byte, fee uint64) error
}

// Handler receives an inbound message on the destination ledger. A nil
// return acknowledges delivery; the channel may redeliver otherwise.
type Handler func(srcChainTag uint32, nonce uint64, payload []byte) error

// MemoryChannel connects ledger instances inside one process. Messages
// submitted before the destination registers are held and delivered on
// registration, modelling the channel's arbitrary delay. Used by tests
// and single-process multi-ledger deployments.
type MemoryChannel struct {
	mu       sync.Mutex
	handlers map[uint32]Handler
	pending  map[uint32][]pendingMsg
}

type pendingMsg struct {
	src     uint32
	nonce   uint64
	payload []byte
}

// NewMemoryChannel creates an in-process channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		handlers: make(map[uint32]Handler),
		pending:  make(map[uint32][]pendingMsg),
	}
}

// Register attaches the inbound handler for a ledger and flushes any
// messages queued for it.
func (c *MemoryChannel) Register(chainTag uint32, h Handler) {
	c.mu.Lock()
	c.handlers[chainTag] = h
	queued := c.pending[chainTag]
	delete(c.pending, chainTag)
	c.mu.Unlock()

	for _, msg := range queued {
		c.deliver(h, msg)
	}
}

// Endpoint returns the Channel view of one source ledger.
func (c *MemoryChannel) Endpoint(srcChainTag uint32) Channel {
	return &memEndpoint{channel: c, src: srcChainTag}
}

// Redeliver replays a message to its destination, simulating the
// at-least-once behavior of a real channel. Intended for tests.
func (c *MemoryChannel) Redeliver(srcChainTag, dstChainTag uint32, nonce uint64, payload []byte) {
	c.mu.Lock()
	h := c.handlers[dstChainTag]
	c.mu.Unlock()
	if h != nil {
		c.deliver(h, pendingMsg{src: srcChainTag, nonce: nonce, payload: payload})
	}
}

func (c *MemoryChannel) deliver(h Handler, msg pendingMsg) {
	if err := h(msg.src, msg.nonce, msg.payload); err != nil {
		klog.Channel.Error().
			Uint32("src", msg.src).
			Uint64("nonce", msg.nonce).
			Err(err).
			Msg("inbound handler rejected delivery")
	}
}

type memEndpoint struct {
	channel *MemoryChannel
	src     uint32
}

// Submit hands a message to the channel. The destination may not be
// registered yet; the message is queued rather than rejected, since the
// sender has already debited the token.
func (e *memEndpoint) Submit(ctx context.Context, dstChainTag uint32, nonce uint64, payload []byte, fee uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := e.channel
	c.mu.Lock()
	h := c.handlers[dstChainTag]
	if h == nil {
		c.pending[dstChainTag] = append(c.pending[dstChainTag], pendingMsg{src: e.src, nonce: nonce, payload: payload})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.deliver(h, pendingMsg{src: e.src, nonce: nonce, payload: payload})
	return nil
}
