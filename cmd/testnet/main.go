// Command testnet boots a 2-ledger local marketplace from scratch.
//
// Usage: go run ./cmd/testnet/
//
// It builds two in-process ledgers (chain tags 1 and 2) with their own
// marketplaces, connects their relay nodes via libp2p, runs a mint, a
// listing, a sale, and then bridges the sold token from ledger 1 to
// ledger 2, verifying it arrives with owner, URI and royalties intact.
// Ctrl+C for early shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/bridge"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/market"
	"github.com/Klingon-tech/klingnet-market/internal/p2p"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
)

const (
	networkID     = "klingmarket-local"
	salePrice     = 1_000
	bridgeFee     = 500
	deliveryGrace = 10 * time.Second
)

// ledgerBundle groups all components for one logical ledger.
type ledgerBundle struct {
	name     string
	tag      uint32
	tokens   *token.Store
	bank     *bank.LedgerBank
	market   *market.Market
	inbound  *bridge.Inbound
	outbound *bridge.Outbound
	p2p      *p2p.Node
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Klingmarket 2-Ledger Local Testnet ===")

	// ── Phase 1: Identities ──────────────────────────────────────────────

	ownerKey, err := crypto.GenerateKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("generate owner key")
	}
	defer ownerKey.Zero()
	owner := crypto.AddressFromPubKey(ownerKey.PublicKey())

	seller := types.Address{0x5E}
	buyer := types.Address{0xB1}

	logger.Info().
		Stringer("owner", owner).
		Stringer("seller", seller).
		Stringer("buyer", buyer).
		Msg("Identities created")

	// ── Phase 2: Build ledgers ───────────────────────────────────────────

	ledger1, err := buildLedger("ledger-1", 1, owner)
	if err != nil {
		logger.Fatal().Err(err).Msg("build ledger-1")
	}
	ledger2, err := buildLedger("ledger-2", 2, owner)
	if err != nil {
		logger.Fatal().Err(err).Msg("build ledger-2")
	}

	// ── Phase 3: Start relays + connect ──────────────────────────────────

	if err := ledger1.p2p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start ledger-1 relay")
	}
	if err := ledger2.p2p.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start ledger-2 relay")
	}
	defer cleanup(ledger1, ledger2)

	logger.Info().
		Str("ledger1_id", ledger1.p2p.ID().String()[:16]+"...").
		Str("ledger2_id", ledger2.p2p.ID().String()[:16]+"...").
		Msg("Relay nodes started")

	connectNodes(ledger1.p2p, ledger2.p2p)
	time.Sleep(500 * time.Millisecond) // GossipSub mesh stabilization.

	logger.Info().
		Int("ledger1_peers", ledger1.p2p.PeerCount()).
		Int("ledger2_peers", ledger2.p2p.PeerCount()).
		Msg("Relays connected")

	// ── Phase 4: Signal handling ─────────────────────────────────────────

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// ── Phase 5: Mint, list, sell on ledger 1 ────────────────────────────

	if err := ledger1.bank.Deposit(buyer, 10_000); err != nil {
		logger.Fatal().Err(err).Msg("fund buyer")
	}

	id, err := ledger1.market.CreateToken(seller, "ipfs://klingon-opera-001", salePrice, seller, 500)
	if err != nil {
		logger.Fatal().Err(err).Msg("create token")
	}
	if err := ledger1.market.Approve(seller, id); err != nil {
		logger.Fatal().Err(err).Msg("approve")
	}
	if err := ledger1.market.ListToken(seller, id, salePrice); err != nil {
		logger.Fatal().Err(err).Msg("list token")
	}

	receipt, err := ledger1.market.CreateMarketSale(buyer, id, salePrice)
	if err != nil {
		logger.Fatal().Err(err).Msg("market sale")
	}
	logger.Info().
		Stringer("token", id).
		Uint64("price", receipt.Price).
		Uint64("fee", receipt.MarketplaceFee).
		Uint64("royalty", receipt.RoyaltyAmount).
		Msg("Token sold on ledger 1")

	// ── Phase 6: Bridge to ledger 2 ──────────────────────────────────────

	nonce, err := ledger1.outbound.SendToken(ctx, buyer, id, 2, bridgeFee)
	if err != nil {
		logger.Fatal().Err(err).Msg("bridge send")
	}
	logger.Info().Uint64("nonce", nonce).Msg("Token burned and handed to the channel")

	// ── Phase 7: Verify arrival ──────────────────────────────────────────

	rec, err := awaitToken(ctx, ledger2.tokens, id)
	if err != nil {
		logger.Fatal().Err(err).Msg("token did not arrive on ledger 2")
	}

	if _, err := ledger1.tokens.Get(id); !errors.Is(err, token.ErrNotFound) {
		logger.Fatal().Msg("token still exists on ledger 1 after bridging")
	}

	logger.Info().
		Stringer("owner", rec.Owner).
		Str("uri", rec.URI).
		Uint16("royalty_bps", rec.RoyaltyBps).
		Msg("Token credited on ledger 2")

	if rec.Owner != buyer || rec.URI != "ipfs://klingon-opera-001" || rec.RoyaltyBps != 500 {
		logger.Fatal().Msg("FAILURE: token record mutated in transit!")
	}

	stats := ledger1.market.GetMarketplaceStats()
	logger.Info().Msg("SUCCESS: sale settled and token bridged, ledgers agree!")
	fmt.Println()
	fmt.Printf("  Token id:           %s\n", id)
	fmt.Printf("  Origin chain tag:   %d (preserved across the bridge)\n", id.ChainTag())
	fmt.Printf("  Sale price:         %d\n", receipt.Price)
	fmt.Printf("  Marketplace fee:    %d\n", receipt.MarketplaceFee)
	fmt.Printf("  Royalty paid:       %d\n", receipt.RoyaltyAmount)
	fmt.Printf("  Seller proceeds:    %d\n", receipt.SellerProceeds)
	fmt.Printf("  Bridge nonce:       %d\n", nonce)
	fmt.Printf("  Ledger 1 sold:      %d\n", stats.SoldCount)
	fmt.Println()
}

// buildLedger creates a fully wired ledger with marketplace, bridge, and relay.
func buildLedger(name string, tag uint32, owner types.Address) (*ledgerBundle, error) {
	db := storage.NewMemory()

	tokens, err := token.NewStore(db, tag)
	if err != nil {
		return nil, fmt.Errorf("token store: %w", err)
	}
	bk := bank.NewLedger(db)
	bus := event.NewBus()

	mkt, err := market.New(db, tokens, bk, bus, owner)
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}

	inbound := bridge.NewInbound(db, tokens, bus)

	p2pNode := p2p.New(p2p.Config{
		ChainTag:   tag,
		ListenAddr: "127.0.0.1",
		Port:       0, // Random port.
		NoDiscover: true,
		NetworkID:  networkID,
	})
	p2pNode.SetBridgeHandler(inbound.OnMessage)

	fees := bridge.FlatFeeEstimator{Base: 10, PerByte: 1}
	outbound := bridge.NewOutbound(db, tokens, mkt, bk, p2pNode, fees, bus)

	return &ledgerBundle{
		name:     name,
		tag:      tag,
		tokens:   tokens,
		bank:     bk,
		market:   mkt,
		inbound:  inbound,
		outbound: outbound,
		p2p:      p2pNode,
	}, nil
}

// awaitToken polls the destination token store until the bridged token
// materializes or the grace period runs out.
func awaitToken(ctx context.Context, tokens *token.Store, id types.TokenID) (*token.Record, error) {
	deadline := time.After(deliveryGrace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("no delivery within %s", deliveryGrace)
		case <-tick.C:
			rec, err := tokens.Get(id)
			if err == nil {
				return rec, nil
			}
			if !errors.Is(err, token.ErrNotFound) {
				return nil, err
			}
		}
	}
}

// connectNodes connects two relay nodes directly.
func connectNodes(a, b *p2p.Node) {
	aHost := a.Host()
	info := libp2ppeer.AddrInfo{
		ID:    aHost.ID(),
		Addrs: aHost.Addrs(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.Host().Connect(ctx, info)
}

// cleanup stops all relay nodes.
func cleanup(ledgers ...*ledgerBundle) {
	for _, l := range ledgers {
		l.p2p.Stop()
	}
}
