package p2p

import (
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/libp2p/go-libp2p/core/peer"
)

const testPeerID = "12D3KooWBhYkxUSVxvGYdHRNKtWqjHBBb8QBHrLtHQSsheXibrVR"

func decodePeer(t *testing.T, s string) peer.ID {
	t.Helper()
	id, err := peer.Decode(s)
	if err != nil {
		t.Fatalf("decode peer id: %v", err)
	}
	return id
}

func TestBanManager_ScoreAccumulation(t *testing.T) {
	bm := NewBanManager(nil, nil)
	id := decodePeer(t, testPeerID)

	// Below threshold: not banned.
	for i := 0; i < 4; i++ {
		bm.RecordOffense(id, PenaltyMalformedEnvelope, "garbage envelope")
	}
	if bm.IsBanned(id) {
		t.Fatal("peer banned below threshold")
	}

	// Fifth offense crosses 100.
	bm.RecordOffense(id, PenaltyMalformedEnvelope, "garbage envelope")
	if !bm.IsBanned(id) {
		t.Fatal("peer not banned at threshold")
	}

	list := bm.BanList()
	if len(list) != 1 || list[0].Score != BanThreshold {
		t.Errorf("ban list = %+v, want one record with score %d", list, BanThreshold)
	}
}

func TestBanManager_HandshakeFailIsInstant(t *testing.T) {
	bm := NewBanManager(nil, nil)
	id := decodePeer(t, testPeerID)

	bm.RecordOffense(id, PenaltyHandshakeFail, "network mismatch")
	if !bm.IsBanned(id) {
		t.Fatal("handshake failure must ban immediately")
	}
}

func TestBanManager_Unban(t *testing.T) {
	bm := NewBanManager(nil, nil)
	id := decodePeer(t, testPeerID)

	bm.RecordOffense(id, PenaltyHandshakeFail, "network mismatch")
	bm.Unban(id)
	if bm.IsBanned(id) {
		t.Fatal("peer still banned after Unban")
	}

	// Score was cleared too: one more small offense must not ban.
	bm.RecordOffense(id, PenaltyMalformedEnvelope, "garbage envelope")
	if bm.IsBanned(id) {
		t.Fatal("stale score survived Unban")
	}
}

func TestBanManager_PersistAndRestore(t *testing.T) {
	db := storage.NewMemory()
	id := decodePeer(t, testPeerID)

	bm := NewBanManager(NewBanStore(db), nil)
	bm.RecordOffense(id, PenaltyHandshakeFail, "network mismatch")

	// A fresh manager over the same DB sees the ban.
	bm2 := NewBanManager(NewBanStore(db), nil)
	bm2.Restore()
	if !bm2.IsBanned(id) {
		t.Fatal("ban not restored from store")
	}
}

func TestBanStore_PruneExpired(t *testing.T) {
	db := storage.NewMemory()
	bs := NewBanStore(db)

	now := time.Now().Unix()
	bs.Put(&BanRecord{ID: "expired", BannedAt: now - 100, ExpiresAt: now - 1})
	bs.Put(&BanRecord{ID: "active", BannedAt: now, ExpiresAt: now + 3600})
	bs.Put(&BanRecord{ID: "permanent", BannedAt: now, ExpiresAt: 0})

	pruned, err := bs.PruneExpired()
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	var remaining int
	bs.ForEach(func(*BanRecord) error {
		remaining++
		return nil
	})
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}
