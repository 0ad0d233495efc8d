package p2p

import (
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// banGater implements the libp2p ConnectionGater interface, rejecting
// banned relays at the transport level.
type banGater struct {
	bans *BanManager
}

// InterceptPeerDial rejects outbound dials to banned peers.
func (g *banGater) InterceptPeerDial(p peer.ID) bool {
	return !g.bans.IsBanned(p)
}

// InterceptAddrDial allows all address dials; filtering is per-peer.
func (g *banGater) InterceptAddrDial(_ peer.ID, _ ma.Multiaddr) bool {
	return true
}

// InterceptAccept allows all inbound connections; the peer identity is
// not known yet at this stage.
func (g *banGater) InterceptAccept(_ network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured rejects banned peers once authenticated.
func (g *banGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.bans.IsBanned(p)
}

// InterceptUpgraded allows all fully upgraded connections.
func (g *banGater) InterceptUpgraded(_ network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}
