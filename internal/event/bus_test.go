package event

import (
	"testing"

	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

func TestBus_EmitDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	id := types.PackTokenID(1, 1)
	bus.Emit(TypeTokenListed, TokenListed{TokenID: id, Price: 100})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != TypeTokenListed {
				t.Errorf("Type = %s, want %s", ev.Type, TypeTokenListed)
			}
			payload, ok := ev.Data.(TokenListed)
			if !ok {
				t.Fatalf("Data has type %T, want TokenListed", ev.Data)
			}
			if payload.TokenID != id || payload.Price != 100 {
				t.Errorf("payload = %+v", payload)
			}
		default:
			t.Fatal("expected event on subscriber channel")
		}
	}
}

func TestBus_FullSubscriberDoesNotBlockEmit(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(1)

	// Second emit would block a naive implementation; it must drop instead.
	bus.Emit(TypeFeeBpsUpdated, FeeBpsUpdated{OldBps: 250, NewBps: 300})
	bus.Emit(TypeFeeBpsUpdated, FeeBpsUpdated{OldBps: 300, NewBps: 350})
}
