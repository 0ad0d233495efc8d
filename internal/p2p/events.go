package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

// BroadcastEvent publishes one marketplace event to the shared events
// topic for external indexers.
func (n *Node) BroadcastEvent(evt event.Event) error {
	if n.topicEvents == nil {
		return fmt.Errorf("relay not started")
	}

	data, err := json.Marshal(EventEnvelope{
		ChainTag: n.config.ChainTag,
		Type:     string(evt.Type),
		Data:     evt.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	return n.topicEvents.Publish(n.ctx, data)
}

// PumpEvents forwards events from the bus to the network until the
// subscription channel closes or the node stops. Run in a goroutine.
func (n *Node) PumpEvents(events <-chan event.Event) {
	for {
		select {
		case <-n.ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := n.BroadcastEvent(evt); err != nil {
				klog.P2P.Debug().Str("event", string(evt.Type)).Err(err).Msg("event broadcast failed")
			}
		}
	}
}

func (n *Node) handleEventMessage(msg *pubsub.Message) {
	n.addPeer(msg.ReceivedFrom, "gossip")

	var env EventEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		n.Bans.RecordOffense(msg.ReceivedFrom, PenaltyMalformedEnvelope, "malformed event envelope")
		return
	}
	if n.eventHandler != nil {
		n.eventHandler(msg.ReceivedFrom, &env)
	}
}
