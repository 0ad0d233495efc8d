package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	"github.com/Klingon-tech/klingnet-market/internal/market"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

var (
	admin  = types.Address{0xAD}
	sender = types.Address{0x51}
	carol  = types.Address{0xC0}
)

// ledger bundles one marketplace instance attached to the channel. Tests
// run two of them over a shared memory DB, isolated by key prefix.
type ledger struct {
	tag      uint32
	tokens   *token.Store
	bank     *bank.LedgerBank
	market   *market.Market
	outbound *Outbound
	inbound  *Inbound
}

func newLedger(t *testing.T, inner storage.DB, tag uint32, ch *MemoryChannel, fees FeeEstimator) *ledger {
	t.Helper()

	db := storage.NewPrefixDB(inner, []byte(fmt.Sprintf("%d/", tag)))
	tokens, err := token.NewStore(db, tag)
	if err != nil {
		t.Fatalf("NewStore(%d): %v", tag, err)
	}
	bk := bank.NewLedger(db)
	bus := event.NewBus()
	mkt, err := market.New(db, tokens, bk, bus, admin)
	if err != nil {
		t.Fatalf("market.New(%d): %v", tag, err)
	}

	// The stock sender carries a working balance for channel fees.
	bk.Deposit(sender, 100_000)

	l := &ledger{
		tag:      tag,
		tokens:   tokens,
		bank:     bk,
		market:   mkt,
		outbound: NewOutbound(db, tokens, mkt, bk, ch.Endpoint(tag), fees, bus),
		inbound:  NewInbound(db, tokens, bus),
	}
	ch.Register(tag, l.inbound.OnMessage)
	return l
}

func newPair(t *testing.T) (*ledger, *ledger, *MemoryChannel) {
	t.Helper()
	ch := NewMemoryChannel()
	inner := storage.NewMemory()
	fees := FlatFeeEstimator{Base: 10, PerByte: 1}
	return newLedger(t, inner, 1, ch, fees), newLedger(t, inner, 2, ch, fees), ch
}

func TestSendToken_Conservation(t *testing.T) {
	// A token bridged from ledger 1 to ledger 2 must exist on exactly
	// one ledger, with identifier and metadata intact.
	a, b, _ := newPair(t)

	id, err := a.tokens.Mint(sender, "ipfs://bridged")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := a.tokens.SetRoyalty(id, carol, 500); err != nil {
		t.Fatalf("SetRoyalty: %v", err)
	}

	nonce, err := a.outbound.SendToken(context.Background(), sender, id, 2, 1000)
	if err != nil {
		t.Fatalf("SendToken: %v", err)
	}
	if nonce != 1 {
		t.Errorf("nonce = %d, want 1", nonce)
	}

	exists, _ := a.tokens.Exists(id)
	if exists {
		t.Error("token must be gone from the source ledger")
	}

	rec, err := b.tokens.Get(id)
	if err != nil {
		t.Fatalf("destination Get: %v", err)
	}
	if rec.Owner != sender {
		t.Errorf("owner = %s, want %s", rec.Owner, sender)
	}
	if rec.URI != "ipfs://bridged" {
		t.Errorf("uri = %q, want ipfs://bridged", rec.URI)
	}
	if rec.RoyaltyReceiver != carol || rec.RoyaltyBps != 500 {
		t.Errorf("royalty = %s/%d, want %s/500", rec.RoyaltyReceiver, rec.RoyaltyBps, carol)
	}
	if id.ChainTag() != 1 {
		t.Errorf("credited id keeps its origin tag, got %d", id.ChainTag())
	}

	// Fresh mints on the destination stay in the destination's id space.
	id2, err := b.tokens.Mint(sender, "ipfs://local")
	if err != nil {
		t.Fatalf("destination Mint: %v", err)
	}
	if id2.ChainTag() != 2 {
		t.Errorf("local mint tag = %d, want 2", id2.ChainTag())
	}
}

func TestSendToken_RoundTripHome(t *testing.T) {
	a, b, _ := newPair(t)

	id, _ := a.tokens.Mint(sender, "ipfs://wanderer")
	if _, err := a.outbound.SendToken(context.Background(), sender, id, 2, 1000); err != nil {
		t.Fatalf("send 1->2: %v", err)
	}
	if _, err := b.outbound.SendToken(context.Background(), sender, id, 1, 1000); err != nil {
		t.Fatalf("send 2->1: %v", err)
	}

	exists, _ := b.tokens.Exists(id)
	if exists {
		t.Error("token must leave ledger 2 on the way home")
	}
	owner, err := a.tokens.OwnerOf(id)
	if err != nil {
		t.Fatalf("OwnerOf after return: %v", err)
	}
	if owner != sender {
		t.Errorf("owner = %s, want %s", owner, sender)
	}
}

func TestSendToken_Rejections(t *testing.T) {
	a, _, _ := newPair(t)
	ctx := context.Background()

	id, _ := a.tokens.Mint(sender, "ipfs://x")

	if _, err := a.outbound.SendToken(ctx, sender, id, 1, 1000); !errors.Is(err, ErrSameChain) {
		t.Errorf("same chain: err = %v, want ErrSameChain", err)
	}
	if _, err := a.outbound.SendToken(ctx, carol, id, 2, 1000); !errors.Is(err, token.ErrUnauthorized) {
		t.Errorf("not owner: err = %v, want ErrUnauthorized", err)
	}
	if _, err := a.outbound.SendToken(ctx, sender, id, 2, 1); !errors.Is(err, ErrInsufficientFee) {
		t.Errorf("low fee: err = %v, want ErrInsufficientFee", err)
	}

	a.market.Approve(sender, id)
	if err := a.market.ListToken(sender, id, 100); err != nil {
		t.Fatalf("ListToken: %v", err)
	}
	if _, err := a.outbound.SendToken(ctx, sender, id, 2, 1000); !errors.Is(err, ErrTokenListed) {
		t.Errorf("listed: err = %v, want ErrTokenListed", err)
	}

	// No rejection burned the token.
	if exists, _ := a.tokens.Exists(id); !exists {
		t.Error("token must survive every rejected send")
	}
}

func TestInbound_DuplicateDelivery(t *testing.T) {
	a, b, ch := newPair(t)

	id, _ := a.tokens.Mint(sender, "ipfs://dup")
	nonce, err := a.outbound.SendToken(context.Background(), sender, id, 2, 1000)
	if err != nil {
		t.Fatalf("SendToken: %v", err)
	}

	payload, _ := EncodeMessage(&Message{Owner: sender, TokenID: id, URI: "ipfs://dup"})
	ch.Redeliver(1, 2, nonce, payload)
	ch.Redeliver(1, 2, nonce, payload)

	// Exactly one live token, no recovery entries.
	rec, err := b.tokens.Get(id)
	if err != nil {
		t.Fatalf("Get after redelivery: %v", err)
	}
	if rec.Owner != sender {
		t.Errorf("owner = %s, want %s", rec.Owner, sender)
	}
	failed, _ := b.inbound.FailedMessages()
	if len(failed) != 0 {
		t.Errorf("failed queue = %d entries, want 0", len(failed))
	}
	delivered, _ := b.inbound.Delivered(1, nonce)
	if !delivered {
		t.Error("delivery marker missing")
	}
}

func TestSendToken_DeliveryBeforeRegistration(t *testing.T) {
	// The channel accepts messages for ledgers that have not come up
	// yet; the credit lands when the destination registers.
	ch := NewMemoryChannel()
	inner := storage.NewMemory()
	fees := FlatFeeEstimator{Base: 10, PerByte: 1}
	a := newLedger(t, inner, 1, ch, fees)

	id, _ := a.tokens.Mint(sender, "ipfs://early")
	if _, err := a.outbound.SendToken(context.Background(), sender, id, 2, 1000); err != nil {
		t.Fatalf("SendToken: %v", err)
	}
	if exists, _ := a.tokens.Exists(id); exists {
		t.Error("token must leave the source even before the destination exists")
	}

	b := newLedger(t, inner, 2, ch, fees)
	owner, err := b.tokens.OwnerOf(id)
	if err != nil {
		t.Fatalf("OwnerOf after late registration: %v", err)
	}
	if owner != sender {
		t.Errorf("owner = %s, want %s", owner, sender)
	}
}

// faultyChannel fails submissions while tripped.
type faultyChannel struct {
	inner Channel
	fail  bool
}

func (c *faultyChannel) Submit(ctx context.Context, dst uint32, nonce uint64, payload []byte, fee uint64) error {
	if c.fail {
		return errors.New("relayer unavailable")
	}
	return c.inner.Submit(ctx, dst, nonce, payload, fee)
}

func TestSendToken_SubmitFailureAndRetry(t *testing.T) {
	ch := NewMemoryChannel()
	inner := storage.NewMemory()
	fees := FlatFeeEstimator{Base: 10, PerByte: 1}

	db := storage.NewPrefixDB(inner, []byte("1/"))
	tokens, _ := token.NewStore(db, 1)
	bk := bank.NewLedger(db)
	bus := event.NewBus()
	mkt, _ := market.New(db, tokens, bk, bus, admin)
	bk.Deposit(sender, 100_000)
	fc := &faultyChannel{inner: ch.Endpoint(1), fail: true}
	out := NewOutbound(db, tokens, mkt, bk, fc, fees, bus)

	b := newLedger(t, inner, 2, ch, fees)

	id, _ := tokens.Mint(sender, "ipfs://stuck")
	nonce, err := out.SendToken(context.Background(), sender, id, 2, 1000)
	if !errors.Is(err, ErrChannelSubmit) {
		t.Fatalf("err = %v, want ErrChannelSubmit", err)
	}

	// Burned but parked: the message survives in the outbox, and the
	// collected fee stays collected.
	if exists, _ := tokens.Exists(id); exists {
		t.Error("token must be burned once the send commits")
	}
	feeBal, _ := bk.BalanceOf(out.FeeAccount())
	if feeBal != 1000 {
		t.Errorf("fee account = %d after parked send, want 1000", feeBal)
	}
	pending, err := out.PendingOutbox()
	if err != nil {
		t.Fatalf("PendingOutbox: %v", err)
	}
	if len(pending) != 1 || pending[0].DstChainTag != 2 || pending[0].Nonce != nonce {
		t.Fatalf("pending = %+v, want one entry for dst 2 nonce %d", pending, nonce)
	}

	// Retry before the channel recovers keeps the entry.
	if err := out.RetrySubmit(context.Background(), 2, nonce); !errors.Is(err, ErrChannelSubmit) {
		t.Errorf("early retry: err = %v, want ErrChannelSubmit", err)
	}

	fc.fail = false
	if err := out.RetrySubmit(context.Background(), 2, nonce); err != nil {
		t.Fatalf("RetrySubmit: %v", err)
	}
	pending, _ = out.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("outbox = %d entries after retry, want 0", len(pending))
	}
	owner, err := b.tokens.OwnerOf(id)
	if err != nil {
		t.Fatalf("OwnerOf after retry: %v", err)
	}
	if owner != sender {
		t.Errorf("owner = %s, want %s", owner, sender)
	}
}

func TestInbound_UndecodablePayloadParked(t *testing.T) {
	_, b, _ := newPair(t)

	if err := b.inbound.OnMessage(1, 77, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("OnMessage must acknowledge garbage, got %v", err)
	}

	failed, err := b.inbound.FailedMessages()
	if err != nil {
		t.Fatalf("FailedMessages: %v", err)
	}
	if len(failed) != 1 || failed[0].SrcChainTag != 1 || failed[0].Nonce != 77 {
		t.Fatalf("failed = %+v, want one entry for src 1 nonce 77", failed)
	}
	if delivered, _ := b.inbound.Delivered(1, 77); !delivered {
		t.Error("garbage deliveries still settle the channel")
	}

	// A retry cannot fix an undecodable payload.
	if err := b.inbound.RetryFailed(1, 77); err == nil {
		t.Error("RetryFailed on garbage must fail")
	}
}

func TestInbound_RoyaltyCapEnforced(t *testing.T) {
	_, b, _ := newPair(t)

	payload, _ := EncodeMessage(&Message{
		Owner:           sender,
		TokenID:         types.PackTokenID(1, 9),
		URI:             "ipfs://greedy",
		RoyaltyReceiver: carol,
		RoyaltyBps:      token.MaxRoyaltyBps + 1,
	})
	if err := b.inbound.OnMessage(1, 5, payload); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	if exists, _ := b.tokens.Exists(types.PackTokenID(1, 9)); exists {
		t.Error("over-cap royalty payload must not mint")
	}
	failed, _ := b.inbound.FailedMessages()
	if len(failed) != 1 {
		t.Fatalf("failed queue = %d entries, want 1", len(failed))
	}
}

func TestInbound_CollisionParkedThenRetried(t *testing.T) {
	_, b, _ := newPair(t)

	// Occupy the id the inbound message will claim.
	collidingID := types.PackTokenID(1, 1)
	if err := b.tokens.MintWithID(collidingID, carol, "ipfs://squatter"); err != nil {
		t.Fatalf("MintWithID: %v", err)
	}

	payload, _ := EncodeMessage(&Message{Owner: sender, TokenID: collidingID, URI: "ipfs://real"})
	if err := b.inbound.OnMessage(1, 3, payload); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}
	failed, _ := b.inbound.FailedMessages()
	if len(failed) != 1 {
		t.Fatalf("failed queue = %d entries, want 1", len(failed))
	}

	// Operator clears the collision, then replays the message.
	if err := b.tokens.Burn(collidingID); err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if err := b.inbound.RetryFailed(1, 3); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	rec, err := b.tokens.Get(collidingID)
	if err != nil {
		t.Fatalf("Get after retry: %v", err)
	}
	if rec.Owner != sender || rec.URI != "ipfs://real" {
		t.Errorf("credited record = %+v, want owner %s uri ipfs://real", rec, sender)
	}
	failed, _ = b.inbound.FailedMessages()
	if len(failed) != 0 {
		t.Errorf("failed queue = %d entries after retry, want 0", len(failed))
	}

	if err := b.inbound.RetryFailed(1, 3); !errors.Is(err, ErrNoFailedMessage) {
		t.Errorf("double retry: err = %v, want ErrNoFailedMessage", err)
	}
}

func TestSendToken_FeeCollected(t *testing.T) {
	a, _, _ := newPair(t)
	ctx := context.Background()

	id, _ := a.tokens.Mint(sender, "ipfs://fee")
	before, _ := a.bank.BalanceOf(sender)

	if _, err := a.outbound.SendToken(ctx, sender, id, 2, 1000); err != nil {
		t.Fatalf("SendToken: %v", err)
	}

	after, _ := a.bank.BalanceOf(sender)
	if after != before-1000 {
		t.Errorf("sender balance = %d, want %d", after, before-1000)
	}
	feeBal, _ := a.bank.BalanceOf(a.outbound.FeeAccount())
	if feeBal != 1000 {
		t.Errorf("fee account = %d, want 1000", feeBal)
	}
}

func TestSendToken_UnfundedCaller(t *testing.T) {
	a, _, _ := newPair(t)

	pauper := types.Address{0x0F}
	id, _ := a.tokens.Mint(pauper, "ipfs://broke")

	_, err := a.outbound.SendToken(context.Background(), pauper, id, 2, 1000)
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want bank.ErrInsufficientFunds", err)
	}
	if exists, _ := a.tokens.Exists(id); !exists {
		t.Error("token must survive a send the caller cannot pay for")
	}
	feeBal, _ := a.bank.BalanceOf(a.outbound.FeeAccount())
	if feeBal != 0 {
		t.Errorf("fee account = %d, want 0", feeBal)
	}
}

func TestOutbound_NoncesAreMonotonicPerDestination(t *testing.T) {
	a, _, _ := newPair(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		id, _ := a.tokens.Mint(sender, "ipfs://seq")
		nonce, err := a.outbound.SendToken(ctx, sender, id, 2, 1000)
		if err != nil {
			t.Fatalf("SendToken #%d: %v", want, err)
		}
		if nonce != want {
			t.Errorf("nonce = %d, want %d", nonce, want)
		}
	}
}
