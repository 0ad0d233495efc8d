// Package p2p implements the relay network between marketplace ledgers
// using libp2p. Bridge payloads travel over per-ledger GossipSub topics;
// marketplace events are broadcast for external indexers.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

const (
	// rendezvousFallback is the discovery namespace when no NetworkID is set.
	rendezvousFallback = "klingmarket"

	// dhtDiscoveryInterval is how often DHT FindPeers runs.
	dhtDiscoveryInterval = 30 * time.Second

	// peerConnectTimeout bounds connection attempts to known peers.
	peerConnectTimeout = 5 * time.Second

	// maxGossipMessage bounds envelope size. A bridge payload tops out
	// near 64 KiB of URI plus fixed fields; events are far smaller.
	maxGossipMessage = 128 * 1024
)

// Config holds relay node configuration.
type Config struct {
	ChainTag   uint32 // Local ledger; the node subscribes to its bridge topic.
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NoDiscover bool
	DB         storage.DB // Peer and ban persistence (nil = disabled, for tests).
	DHTServer  bool       // Run DHT in server mode (for seed relays).
	NetworkID  string     // e.g. "klingmarket-main-1"; isolates discovery and handshakes.
	DataDir    string     // Persists the node identity key.
}

// Node is one relay on the marketplace network.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	topicBridge *pubsub.Topic
	subBridge   *pubsub.Subscription
	topicEvents *pubsub.Topic
	subEvents   *pubsub.Subscription

	// Topics for other ledgers this node has published into.
	pubMu     sync.Mutex
	pubTopics map[uint32]*pubsub.Topic

	bridgeHandler func(srcChainTag uint32, nonce uint64, payload []byte) error
	eventHandler  func(from peer.ID, env *EventEnvelope)

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	Bans       *BanManager // Nil store when Config.DB is nil.
	peerStore  *PeerStore  // Nil when Config.DB is nil.
	dht        *dht.IpfsDHT
	connNotify *connNotifier
}

// New creates a relay node with the given config.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		peers:     make(map[peer.ID]*Peer),
		pubTopics: make(map[uint32]*pubsub.Topic),
	}
	if cfg.DB != nil {
		n.peerStore = NewPeerStore(cfg.DB)
	}
	return n
}

// rendezvous returns the DHT/mDNS discovery namespace.
func (n *Node) rendezvous() string {
	if n.config.NetworkID != "" {
		return "klingmarket/" + n.config.NetworkID
	}
	return rendezvousFallback
}

// Start brings up the libp2p host, joins the gossip topics and begins
// peer discovery.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)

	// Ban manager comes first so the gater can reference it.
	if n.config.DB != nil {
		n.Bans = NewBanManager(NewBanStore(n.config.DB), n)
		n.Bans.Restore()
	} else {
		n.Bans = NewBanManager(nil, n)
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
		libp2p.ConnectionGater(&banGater{bans: n.Bans}),
	}

	// A persisted identity keeps the peer ID stable across restarts.
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load relay identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	n.connNotify = &connNotifier{node: n}
	h.Network().Notify(n.connNotify)

	// DHT before GossipSub so it can serve as a peer source.
	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h,
		pubsub.WithMaxMessageSize(maxGossipMessage),
	)
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	if err := n.joinTopics(); err != nil {
		n.closeDHT()
		h.Close()
		return err
	}

	n.registerHandshakeHandler()

	go n.readLoop(n.subBridge, n.handleBridgeMessage)
	go n.readLoop(n.subEvents, n.handleEventMessage)

	go n.reconnectKnownPeers()

	if len(n.config.Seeds) > 0 {
		klog.P2P.Info().Int("seeds", len(n.config.Seeds)).Msg("connecting to seed relays")
	}
	n.connectSeedsOnce()
	go n.connectSeedsLoop()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}

	if n.peerStore != nil {
		go n.runPersistLoop()
	}

	return nil
}

// Stop shuts the relay down, persisting known peers first.
func (n *Node) Stop() error {
	n.persistPeers()
	n.cancel()

	if n.subBridge != nil {
		n.subBridge.Cancel()
	}
	if n.subEvents != nil {
		n.subEvents.Cancel()
	}

	n.pubMu.Lock()
	for tag, t := range n.pubTopics {
		t.Close()
		delete(n.pubTopics, tag)
	}
	n.pubMu.Unlock()

	n.closeDHT()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// Host returns the underlying libp2p host (nil before Start).
func (n *Node) Host() host.Host {
	return n.host
}

// ID returns this relay's peer ID.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the full multiaddrs this relay is reachable at.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// SetBridgeHandler registers the callback for inbound bridge payloads.
// Set before Start.
func (n *Node) SetBridgeHandler(fn func(srcChainTag uint32, nonce uint64, payload []byte) error) {
	n.bridgeHandler = fn
}

// SetEventHandler registers a callback for marketplace events gossiped
// by other ledgers. Set before Start.
func (n *Node) SetEventHandler(fn func(from peer.ID, env *EventEnvelope)) {
	n.eventHandler = fn
}

// DisconnectPeer closes all connections to a peer.
func (n *Node) DisconnectPeer(id peer.ID) error {
	if n.host == nil {
		return fmt.Errorf("relay not started")
	}
	n.removePeer(id)
	return n.host.Network().ClosePeer(id)
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a snapshot of connected peers.
func (n *Node) PeerList() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

func (n *Node) addPeer(id peer.ID, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.peers[id]; !exists {
		n.peers[id] = &Peer{
			ID:          id,
			ConnectedAt: time.Now(),
			Source:      source,
		}
	}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *Node) joinTopics() error {
	var err error
	n.topicBridge, err = n.pubsub.Join(BridgeTopic(n.config.ChainTag))
	if err != nil {
		return fmt.Errorf("join bridge topic: %w", err)
	}
	n.subBridge, err = n.topicBridge.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe bridge: %w", err)
	}

	n.topicEvents, err = n.pubsub.Join(TopicEvents)
	if err != nil {
		return fmt.Errorf("join events topic: %w", err)
	}
	n.subEvents, err = n.topicEvents.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	return nil
}

func (n *Node) readLoop(sub *pubsub.Subscription, handler func(*pubsub.Message)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue // Skip own messages.
		}
		handler(msg)
	}
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), &discoveryNotifee{node: n})
	// mDNS failure is non-fatal.
	_ = svc.Start()
}

// connectSeedsOnce tries each seed relay once. Returns true if at least
// one connected.
func (n *Node) connectSeedsOnce() bool {
	connected := false
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			klog.P2P.Warn().Str("addr", addr).Err(err).Msg("bad seed address")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			klog.P2P.Warn().Str("peer", shortPeer(info.ID)).Err(err).Msg("seed connect failed")
			continue
		}
		n.addPeer(info.ID, "seed")
		connected = true
	}
	return connected
}

// connectSeedsLoop retries seeds every 10s while the node has no peers.
func (n *Node) connectSeedsLoop() {
	if len(n.config.Seeds) == 0 {
		return
	}
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(10 * time.Second):
			if n.PeerCount() == 0 {
				n.connectSeedsOnce()
			}
		}
	}
}

func (n *Node) initDHT() error {
	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kadDHT, err := dht.New(n.ctx, n.host, dht.Mode(mode))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kadDHT
	return kadDHT.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}

	routingDiscovery := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, routingDiscovery, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.findDHTPeers(routingDiscovery)
		}
	}
}

func (n *Node) findDHTPeers(routingDiscovery *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, 20*time.Second)
	defer cancel()

	peerCh, err := routingDiscovery.FindPeers(ctx, n.rendezvous())
	if err != nil {
		return
	}

	for p := range peerCh {
		if p.ID == n.host.ID() || len(p.Addrs) == 0 {
			continue
		}
		if n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers {
			return
		}

		connectCtx, connectCancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if err := n.host.Connect(connectCtx, p); err == nil {
			n.mu.Lock()
			if existing, ok := n.peers[p.ID]; ok && existing.Source == "" {
				existing.Source = "dht"
			}
			n.mu.Unlock()
		}
		connectCancel()
	}
}

func (n *Node) persistPeers() {
	if n.peerStore == nil || n.host == nil {
		return
	}

	n.mu.RLock()
	snapshot := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		snapshot = append(snapshot, p)
	}
	n.mu.RUnlock()

	now := time.Now().Unix()
	for _, p := range snapshot {
		addrs := n.host.Peerstore().Addrs(p.ID)
		addrStrs := make([]string, len(addrs))
		for i, a := range addrs {
			addrStrs[i] = a.String()
		}
		// Best-effort, ignore errors.
		n.peerStore.Save(PeerRecord{
			ID:       p.ID.String(),
			Addrs:    addrStrs,
			LastSeen: now,
			Source:   p.Source,
		})
	}
}

// reconnectKnownPeers dials peers persisted by a previous run.
func (n *Node) reconnectKnownPeers() {
	if n.peerStore == nil {
		return
	}

	n.peerStore.PruneStale(staleThreshold)

	records, err := n.peerStore.LoadAll()
	if err != nil {
		return
	}

	for _, rec := range records {
		id, err := peer.Decode(rec.ID)
		if err != nil || id == n.host.ID() {
			continue
		}

		info := peer.AddrInfo{ID: id}
		for _, addr := range rec.Addrs {
			ai, err := peer.AddrInfoFromString(fmt.Sprintf("%s/p2p/%s", addr, rec.ID))
			if err != nil {
				continue
			}
			info.Addrs = append(info.Addrs, ai.Addrs...)
		}
		if len(info.Addrs) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		n.host.Connect(ctx, info) // Best-effort reconnect.
		cancel()
	}
}

func (n *Node) runPersistLoop() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.persistPeers()
			n.peerStore.PruneStale(staleThreshold)
		}
	}
}

// loadOrCreateIdentity loads the persisted libp2p identity key from
// dataDir, or generates and saves a new one.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "relay.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode relay key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save relay key: %w", err)
	}
	return priv, nil
}

func shortPeer(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
