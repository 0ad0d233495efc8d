package p2p

import (
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"
)

// connNotifier tracks connection lifecycle via the network.Notifiee
// interface, keeping the peer table in sync with live connections.
type connNotifier struct {
	node *Node
}

// Connected is called when a new connection is opened. Outbound
// connections trigger a handshake; inbound ones are handshaken by the
// stream handler on the other side.
func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	remotePeer := conn.RemotePeer()
	if remotePeer == cn.node.host.ID() {
		return
	}
	cn.node.addPeer(remotePeer, "")
	if conn.Stat().Direction == network.DirOutbound {
		go cn.node.doHandshake(remotePeer)
	}
}

// Disconnected removes the peer once its last connection closes.
func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remotePeer := conn.RemotePeer()
	if len(net.ConnsToPeer(remotePeer)) == 0 {
		cn.node.removePeer(remotePeer)
	}
}

func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}
