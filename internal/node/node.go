// Package node assembles a marketplace node that can be embedded in any
// binary.
package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Klingon-tech/klingnet-market/config"
	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/bridge"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/market"
	"github.com/Klingon-tech/klingnet-market/internal/p2p"
	"github.com/Klingon-tech/klingnet-market/internal/rpc"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized marketplace node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db     storage.DB
	tokens *token.Store
	bank   *bank.LedgerBank
	market *market.Market
	bus    *event.Bus

	// Bridge
	inbound  *bridge.Inbound
	outbound *bridge.Outbound

	// Networking
	p2pNode *p2p.Node

	// RPC
	rpcServer *rpc.Server

	owner types.Address

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node: logger, storage, token store, bank,
// marketplace, bridge, relay network and RPC. Background goroutines start
// with Start().
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingmarket.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Uint32("chain_tag", cfg.ChainTag).
		Msg("Starting Klingmarket Node")

	// ── 2. Owner identity ───────────────────────────────────────────
	var owner types.Address
	if cfg.Market.OwnerPubKey != "" {
		pubKey, err := hex.DecodeString(cfg.Market.OwnerPubKey)
		if err != nil {
			return nil, fmt.Errorf("decode owner pubkey: %w", err)
		}
		owner = crypto.AddressFromPubKey(pubKey)
		logger.Info().Stringer("owner", owner).Msg("Marketplace owner configured")
	} else {
		logger.Warn().Msg("No owner pubkey configured; admin RPC methods are unusable")
	}

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	// ── 4. Core state ───────────────────────────────────────────────
	tokens, err := token.NewStore(db, cfg.ChainTag)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open token store: %w", err)
	}
	bk := bank.NewLedger(db)
	bus := event.NewBus()

	mkt, err := market.New(db, tokens, bk, bus, owner)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open marketplace: %w", err)
	}

	// The config file is authoritative for the fee rate at boot.
	if mkt.GetMarketplaceStats().FeeBps != cfg.Market.FeeBps {
		if err := mkt.SetFeeBps(owner, cfg.Market.FeeBps); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply configured fee: %w", err)
		}
	}

	// ── 5. Bridge inbound ───────────────────────────────────────────
	inbound := bridge.NewInbound(db, tokens, bus)

	// ── 6. Relay network ────────────────────────────────────────────
	var p2pNode *p2p.Node
	var channel bridge.Channel
	if cfg.P2P.Enabled {
		p2pNode = p2p.New(p2p.Config{
			ChainTag:   cfg.ChainTag,
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  cfg.P2P.NetworkID,
			DB:         db,
			DataDir:    cfg.RelayDir(),
		})
		p2pNode.SetBridgeHandler(inbound.OnMessage)

		if err := p2pNode.Start(); err != nil {
			db.Close()
			return nil, fmt.Errorf("start relay network: %w", err)
		}

		if cfg.P2P.ClearBans {
			clearBans(p2pNode, logger)
		}

		logger.Info().
			Str("id", p2pNode.ID().String()).
			Int("port", cfg.P2P.Port).
			Bool("discovery", !cfg.P2P.NoDiscover).
			Msg("Relay node started")

		channel = p2pNode
	} else {
		// Offline mode: an in-process channel keeps the bridge API
		// alive for local multi-ledger setups, delivering nothing
		// beyond this process.
		mem := bridge.NewMemoryChannel()
		mem.Register(cfg.ChainTag, inbound.OnMessage)
		channel = mem.Endpoint(cfg.ChainTag)
		logger.Warn().Msg("Relay networking disabled by config; bridge messages stay local")
	}

	// ── 7. Bridge outbound ──────────────────────────────────────────
	fees := bridge.FlatFeeEstimator{Base: cfg.Bridge.FeeBase, PerByte: cfg.Bridge.FeePerByte}
	outbound := bridge.NewOutbound(db, tokens, mkt, bk, channel, fees, bus)

	// ── 8. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, mkt, tokens, bk, inbound, outbound, p2pNode, owner, rpc.Config{
			AllowedIPs:  cfg.RPC.AllowedIPs,
			CORSOrigins: cfg.RPC.CORSOrigins,
		})
		if err := rpcServer.Start(); err != nil {
			if p2pNode != nil {
				p2pNode.Stop()
			}
			db.Close()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		tokens:    tokens,
		bank:      bk,
		market:    mkt,
		bus:       bus,
		inbound:   inbound,
		outbound:  outbound,
		p2pNode:   p2pNode,
		rpcServer: rpcServer,
		owner:     owner,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches background goroutines: the event pump that mirrors
// marketplace events onto the relay network.
func (n *Node) Start() error {
	if n.p2pNode != nil {
		events := n.bus.Subscribe(64)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.p2pNode.PumpEvents(events)
		}()
	}

	n.logger.Info().
		Uint32("chain_tag", n.cfg.ChainTag).
		Bool("p2p", n.p2pNode != nil).
		Bool("rpc", n.rpcServer != nil).
		Msg("Node started successfully")

	return nil
}

// Stop performs graceful shutdown in reverse order. The relay node is
// stopped before waiting on the pump goroutine, which exits with it.
func (n *Node) Stop() {
	n.cancel()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	n.wg.Wait()

	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// clearBans lifts every recorded relay ban.
func clearBans(p2pNode *p2p.Node, logger zerolog.Logger) {
	bans := p2pNode.Bans.BanList()
	for _, b := range bans {
		id, err := peer.Decode(b.ID)
		if err != nil {
			continue
		}
		p2pNode.Bans.Unban(id)
	}
	if len(bans) > 0 {
		logger.Info().Int("count", len(bans)).Msg("Relay bans cleared")
	}
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Market returns the marketplace core.
func (n *Node) Market() *market.Market {
	return n.market
}

// Tokens returns the token store.
func (n *Node) Tokens() *token.Store {
	return n.tokens
}

// Bank returns the balance ledger.
func (n *Node) Bank() *bank.LedgerBank {
	return n.bank
}

// Outbound returns the bridge send side.
func (n *Node) Outbound() *bridge.Outbound {
	return n.outbound
}

// Inbound returns the bridge receive side.
func (n *Node) Inbound() *bridge.Inbound {
	return n.inbound
}

// PeerCount reports connected relays, zero when networking is disabled.
func (n *Node) PeerCount() int {
	if n.p2pNode == nil {
		return 0
	}
	return n.p2pNode.PeerCount()
}
