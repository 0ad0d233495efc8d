package p2p

import (
	"fmt"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

func TestPeerStore_SaveAndLoadAll(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())

	now := time.Now().Unix()
	for i := 0; i < 3; i++ {
		err := ps.Save(PeerRecord{
			ID:       fmt.Sprintf("peer-%d", i),
			Addrs:    []string{"/ip4/127.0.0.1/tcp/9000"},
			LastSeen: now,
			Source:   "seed",
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	records, err := ps.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
	count, _ := ps.Count()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestPeerStore_UpdateDoesNotDuplicate(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())

	rec := PeerRecord{ID: "peer-a", LastSeen: time.Now().Unix()}
	ps.Save(rec)
	rec.Source = "dht"
	ps.Save(rec)

	count, _ := ps.Count()
	if count != 1 {
		t.Errorf("count = %d, want 1 after update", count)
	}
	records, _ := ps.LoadAll()
	if records[0].Source != "dht" {
		t.Errorf("source = %q, want dht", records[0].Source)
	}
}

func TestPeerStore_CapacityLimit(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())

	now := time.Now().Unix()
	for i := 0; i < maxPersistedPeers+10; i++ {
		ps.Save(PeerRecord{ID: fmt.Sprintf("peer-%04d", i), LastSeen: now})
	}

	count, _ := ps.Count()
	if count != maxPersistedPeers {
		t.Errorf("count = %d, want capacity %d", count, maxPersistedPeers)
	}
}

func TestPeerStore_PruneStale(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())

	now := time.Now()
	ps.Save(PeerRecord{ID: "fresh", LastSeen: now.Unix()})
	ps.Save(PeerRecord{ID: "stale", LastSeen: now.Add(-48 * time.Hour).Unix()})

	pruned, err := ps.PruneStale(staleThreshold)
	if err != nil {
		t.Fatalf("PruneStale: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	records, _ := ps.LoadAll()
	if len(records) != 1 || records[0].ID != "fresh" {
		t.Errorf("records = %+v, want only the fresh peer", records)
	}
}
