package p2p

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// handshakeTimeout bounds a complete handshake exchange.
	handshakeTimeout = 10 * time.Second

	// maxHandshakeBytes limits handshake message size.
	maxHandshakeBytes = 4096
)

// HandshakeMessage is exchanged between relays to verify they serve the
// same marketplace network. Chain tags may differ: relays for distinct
// ledgers still exchange bridge traffic, but only within one network.
type HandshakeMessage struct {
	ProtocolVersion uint32 `json:"protocol_version"`
	NetworkID       string `json:"network_id"`
	ChainTag        uint32 `json:"chain_tag"`
}

// registerHandshakeHandler installs the stream handler answering
// incoming handshakes.
func (n *Node) registerHandshakeHandler() {
	n.host.SetStreamHandler(HandshakeProtocol, func(stream network.Stream) {
		defer stream.Close()

		remotePeer := stream.Conn().RemotePeer()
		_ = stream.SetReadDeadline(time.Now().Add(handshakeTimeout))

		var peerMsg HandshakeMessage
		if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&peerMsg); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortPeer(remotePeer)).Msg("handshake read failed")
			return
		}

		ourMsg := n.buildHandshakeMessage()
		if err := json.NewEncoder(stream).Encode(&ourMsg); err != nil {
			klog.P2P.Debug().Err(err).Str("peer", shortPeer(remotePeer)).Msg("handshake write failed")
			return
		}

		n.finishHandshake(remotePeer, peerMsg)
	})
}

// doHandshake initiates a handshake with a remote relay (dialer side).
func (n *Node) doHandshake(peerID peer.ID) {
	stream, err := n.host.NewStream(n.ctx, peerID, HandshakeProtocol)
	if err != nil {
		// Peer does not speak the handshake protocol; tolerate, gossip
		// validation still protects the topics.
		klog.P2P.Debug().Str("peer", shortPeer(peerID)).Msg("peer has no handshake protocol")
		return
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(handshakeTimeout))

	ourMsg := n.buildHandshakeMessage()
	if err := json.NewEncoder(stream).Encode(&ourMsg); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortPeer(peerID)).Msg("handshake send failed")
		return
	}
	stream.CloseWrite()

	var peerMsg HandshakeMessage
	if err := json.NewDecoder(io.LimitReader(stream, maxHandshakeBytes)).Decode(&peerMsg); err != nil {
		klog.P2P.Debug().Err(err).Str("peer", shortPeer(peerID)).Msg("handshake response read failed")
		return
	}

	n.finishHandshake(peerID, peerMsg)
}

// finishHandshake validates the peer's message and bans on mismatch.
func (n *Node) finishHandshake(peerID peer.ID, msg HandshakeMessage) {
	reason := n.validateHandshake(msg)
	if reason == "" {
		return
	}
	klog.P2P.Warn().
		Str("peer", shortPeer(peerID)).
		Str("reason", reason).
		Msg("handshake rejected, banning peer")
	if n.Bans != nil {
		n.Bans.RecordOffense(peerID, PenaltyHandshakeFail, reason)
	}
	n.DisconnectPeer(peerID)
}

// validateHandshake checks a peer's handshake message. Returns an empty
// string on success, or the rejection reason.
func (n *Node) validateHandshake(msg HandshakeMessage) string {
	if msg.NetworkID != n.config.NetworkID {
		return fmt.Sprintf("network mismatch: peer=%q local=%q", msg.NetworkID, n.config.NetworkID)
	}
	if msg.ProtocolVersion < MinProtocolVersion {
		return fmt.Sprintf("protocol version too low: peer=%d min=%d",
			msg.ProtocolVersion, MinProtocolVersion)
	}
	return ""
}

func (n *Node) buildHandshakeMessage() HandshakeMessage {
	return HandshakeMessage{
		ProtocolVersion: ProtocolVersion,
		NetworkID:       n.config.NetworkID,
		ChainTag:        n.config.ChainTag,
	}
}
