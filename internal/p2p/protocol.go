package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// GossipSub topic and stream protocol identifiers.
const (
	// TopicEvents carries marketplace events for external indexers.
	TopicEvents = "/klingmarket/events/1.0.0"

	// HandshakeProtocol is the stream protocol ID for relay compatibility checks.
	HandshakeProtocol = protocol.ID("/klingmarket/handshake/1.0.0")

	// ProtocolVersion is advertised during handshake.
	ProtocolVersion uint32 = 1

	// MinProtocolVersion is the lowest version we accept from peers.
	MinProtocolVersion uint32 = 1
)

// BridgeTopic returns the GossipSub topic carrying bridge messages bound
// for one ledger. Every relay subscribes to its own ledger's topic and
// publishes into the destination's.
func BridgeTopic(chainTag uint32) string {
	return fmt.Sprintf("/klingmarket/bridge/%d/1.0.0", chainTag)
}

// Envelope wraps a bridge payload on the wire. The source tag and nonce
// identify the message for destination-side deduplication; the fee is
// what the sender attached for the relayers carrying it.
type Envelope struct {
	SrcChainTag uint32 `json:"src"`
	Nonce       uint64 `json:"nonce"`
	Fee         uint64 `json:"fee"`
	Payload     []byte `json:"payload"`
}

// EventEnvelope wraps one marketplace event for the events topic.
type EventEnvelope struct {
	ChainTag uint32 `json:"chainTag"`
	Type     string `json:"type"`
	Data     any    `json:"data"`
}
