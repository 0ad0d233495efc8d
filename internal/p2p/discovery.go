package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
)

// discoveryNotifee feeds mDNS hits into the relay's peer set.
type discoveryNotifee struct {
	node *Node
}

// HandlePeerFound dials a relay announced on the local network. Dials
// respect MaxPeers, same as the DHT discovery path.
func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	n := d.node
	if pi.ID == n.host.ID() {
		return
	}
	if n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers {
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, pi); err == nil {
		n.addPeer(pi.ID, "mdns")
	}
}
