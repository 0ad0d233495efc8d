package p2p

import (
	"context"
	"encoding/json"
	"fmt"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

// Submit publishes a bridge envelope into the destination ledger's
// topic. It satisfies the bridge channel contract: returning nil means
// the network accepted the message, not that it was delivered.
func (n *Node) Submit(ctx context.Context, dstChainTag uint32, nonce uint64, payload []byte, fee uint64) error {
	if n.pubsub == nil {
		return fmt.Errorf("relay not started")
	}

	topic, err := n.publishTopic(dstChainTag)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Envelope{
		SrcChainTag: n.config.ChainTag,
		Nonce:       nonce,
		Fee:         fee,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return topic.Publish(ctx, data)
}

// publishTopic joins (once) and returns the bridge topic of another
// ledger. Joined topics are cached for the node's lifetime.
func (n *Node) publishTopic(dst uint32) (*pubsub.Topic, error) {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	if t, ok := n.pubTopics[dst]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(BridgeTopic(dst))
	if err != nil {
		return nil, fmt.Errorf("join bridge topic %d: %w", dst, err)
	}
	n.pubTopics[dst] = t
	return t, nil
}

// handleBridgeMessage decodes one envelope from the local bridge topic
// and hands it to the registered handler. Peers gossiping garbage into
// the topic accumulate ban score.
func (n *Node) handleBridgeMessage(msg *pubsub.Message) {
	n.addPeer(msg.ReceivedFrom, "gossip")

	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		klog.P2P.Debug().
			Str("peer", shortPeer(msg.ReceivedFrom)).
			Err(err).
			Msg("malformed bridge envelope")
		n.Bans.RecordOffense(msg.ReceivedFrom, PenaltyMalformedEnvelope, "malformed bridge envelope")
		return
	}
	if env.SrcChainTag == n.config.ChainTag {
		// A message claiming to come from this ledger is bogus.
		n.Bans.RecordOffense(msg.ReceivedFrom, PenaltyMalformedEnvelope, "envelope spoofs local chain tag")
		return
	}

	if n.bridgeHandler == nil {
		return
	}
	if err := n.bridgeHandler(env.SrcChainTag, env.Nonce, env.Payload); err != nil {
		// Handler failures are local (storage); the envelope itself was
		// well-formed, so the peer is not penalized.
		klog.P2P.Error().
			Uint32("src", env.SrcChainTag).
			Uint64("nonce", env.Nonce).
			Err(err).
			Msg("bridge handler failed")
	}
}
