package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Peer is one connected relay.
type Peer struct {
	ID          peer.ID
	ConnectedAt time.Time
	Source      string // "seed", "dht", "mdns", "gossip"
}
