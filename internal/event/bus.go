package event

import (
	"sync"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
)

// Event pairs a type tag with its payload struct.
type Event struct {
	Type Type
	Data any
}

// Bus fans emitted events out to subscribers. Emission never blocks the
// emitting operation: subscribers with full buffers miss events (they are
// observers, not participants in settlement).
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its receive channel.
// The buffer absorbs bursts; a lagging subscriber drops events.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Emit publishes an event to all subscribers.
func (b *Bus) Emit(typ Type, data any) {
	klog.Market.Debug().Str("event", string(typ)).Msg("emit")

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- Event{Type: typ, Data: data}:
		default:
			klog.Market.Warn().Str("event", string(typ)).Msg("subscriber buffer full, event dropped")
		}
	}
}
