package rpcclient

import (
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-market/internal/bank"
	"github.com/Klingon-tech/klingnet-market/internal/event"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/market"
	"github.com/Klingon-tech/klingnet-market/internal/rpc"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/token"
	"github.com/Klingon-tech/klingnet-market/pkg/crypto"
	"github.com/Klingon-tech/klingnet-market/pkg/types"
)

type testEnv struct {
	client   *Client
	market   *market.Market
	bank     *bank.LedgerBank
	ownerKey *crypto.PrivateKey
	owner    types.Address
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	ownerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := crypto.AddressFromPubKey(ownerKey.PublicKey())

	db := storage.NewMemory()
	tokens, err := token.NewStore(db, 1)
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	bk := bank.NewLedger(db)
	bus := event.NewBus()

	mkt, err := market.New(db, tokens, bk, bus, owner)
	if err != nil {
		t.Fatalf("market: %v", err)
	}

	srv := rpc.New("127.0.0.1:0", mkt, tokens, bk, nil, nil, nil, owner)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client:   New("http://" + srv.Addr() + "/"),
		market:   mkt,
		bank:     bk,
		ownerKey: ownerKey,
		owner:    owner,
	}
}

func TestClient_Stats(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.client.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ChainTag != 1 {
		t.Errorf("chain tag = %d, want 1", stats.ChainTag)
	}
	if stats.ListedCount != 0 {
		t.Errorf("listed count = %d, want 0", stats.ListedCount)
	}
}

func TestClient_ItemsAndTokenInfo(t *testing.T) {
	env := setupTestEnv(t)

	creator := types.Address{0xC4}
	id, err := env.market.CreateToken(creator, "ipfs://item", 500, creator, 100)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := env.market.Approve(creator, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.market.ListToken(creator, id, 500); err != nil {
		t.Fatalf("list token: %v", err)
	}

	items, err := env.client.Items(0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if items.Count != 1 {
		t.Fatalf("count = %d, want 1", items.Count)
	}
	if items.Items[0].TokenID != id {
		t.Errorf("item id = %s, want %s", items.Items[0].TokenID, id)
	}

	info, err := env.client.TokenInfo(id.String())
	if err != nil {
		t.Fatalf("TokenInfo: %v", err)
	}
	if info.URI != "ipfs://item" {
		t.Errorf("uri = %q", info.URI)
	}
	if info.ChainTag != 1 {
		t.Errorf("chain tag = %d, want 1", info.ChainTag)
	}
}

func TestClient_Balance(t *testing.T) {
	env := setupTestEnv(t)

	addr := types.Address{0xB7}
	if err := env.bank.Deposit(addr, 1234); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	result, err := env.client.Balance(addr.String())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if result.Balance != 1234 {
		t.Errorf("balance = %d, want 1234", result.Balance)
	}
}

func TestClient_AdminSetFee(t *testing.T) {
	env := setupTestEnv(t)

	auth, err := SignAdmin(env.ownerKey, "admin_setFeeBps", fmt.Sprint(300))
	if err != nil {
		t.Fatalf("SignAdmin: %v", err)
	}
	var ok rpc.OKResult
	err = env.client.Call("admin_setFeeBps", rpc.AdminSetFeeBpsParam{AdminAuth: auth, FeeBps: 300}, &ok)
	if err != nil {
		t.Fatalf("admin_setFeeBps: %v", err)
	}

	stats, err := env.client.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.FeeBps != 300 {
		t.Errorf("fee bps = %d, want 300", stats.FeeBps)
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1, should refuse

	err := client.Call("market_getStats", nil, nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
