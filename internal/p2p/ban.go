package p2p

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Ban thresholds and durations.
const (
	BanThreshold = 100
	BanDuration  = 24 * time.Hour
)

// Penalty values per offense.
const (
	PenaltyMalformedEnvelope = 20  // Garbage on a gossip topic.
	PenaltyHandshakeFail     = 100 // Wrong network, instant ban.
)

const banKeyPrefix = "rb/" // rb/<peerID> -> BanRecord JSON

// BanRecord is a persisted ban entry.
type BanRecord struct {
	ID        string `json:"id"` // base58 peer ID
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"` // 0 = permanent
}

// IsExpired reports whether a non-permanent ban has lapsed.
func (r *BanRecord) IsExpired() bool {
	return r.ExpiresAt > 0 && time.Now().Unix() >= r.ExpiresAt
}

// BanManager tracks peer offense scores and active bans.
type BanManager struct {
	mu     sync.RWMutex
	scores map[peer.ID]int
	bans   map[peer.ID]*BanRecord
	store  *BanStore // Nil disables persistence.
	node   *Node     // Nil disables disconnect-on-ban.
}

// NewBanManager creates a BanManager. store and node may be nil.
func NewBanManager(store *BanStore, node *Node) *BanManager {
	return &BanManager{
		scores: make(map[peer.ID]int),
		bans:   make(map[peer.ID]*BanRecord),
		store:  store,
		node:   node,
	}
}

// Restore loads persisted bans into the in-memory cache, pruning
// expired ones on the way.
func (bm *BanManager) Restore() {
	if bm.store == nil {
		return
	}
	bm.store.PruneExpired()

	bm.mu.Lock()
	defer bm.mu.Unlock()

	bm.store.ForEach(func(rec *BanRecord) error {
		if rec.IsExpired() {
			return nil
		}
		id, err := peer.Decode(rec.ID)
		if err != nil {
			return nil
		}
		bm.bans[id] = rec
		return nil
	})
}

// RecordOffense adds penalty score to a peer. Crossing BanThreshold
// bans and disconnects it.
func (bm *BanManager) RecordOffense(id peer.ID, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[id]; ok && !rec.IsExpired() {
		return
	}

	bm.scores[id] += penalty
	if bm.scores[id] < BanThreshold {
		return
	}

	now := time.Now()
	rec := &BanRecord{
		ID:        id.String(),
		Reason:    reason,
		Score:     bm.scores[id],
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[id] = rec
	delete(bm.scores, id)

	if bm.store != nil {
		bm.store.Put(rec)
	}

	klog.P2P.Warn().
		Str("peer", shortPeer(id)).
		Str("reason", reason).
		Int("score", rec.Score).
		Msg("peer banned")

	if bm.node != nil {
		go bm.node.DisconnectPeer(id)
	}
}

// IsBanned reports whether the peer is currently banned.
func (bm *BanManager) IsBanned(id peer.ID) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[id]
	bm.mu.RUnlock()

	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.mu.Lock()
		delete(bm.bans, id)
		bm.mu.Unlock()
		if bm.store != nil {
			bm.store.Delete(id)
		}
		return false
	}
	return true
}

// Unban manually lifts a ban and clears any score.
func (bm *BanManager) Unban(id peer.ID) {
	bm.mu.Lock()
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.Delete(id)
	}
}

// BanList returns a snapshot of active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// BanStore persists ban records in a storage.DB.
type BanStore struct {
	db storage.DB
}

// NewBanStore creates a BanStore backed by the given DB.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{db: db}
}

func banRecordKey(id string) []byte {
	return []byte(banKeyPrefix + id)
}

// Get retrieves a ban record by peer ID.
func (bs *BanStore) Get(id peer.ID) (*BanRecord, error) {
	data, err := bs.db.Get(banRecordKey(id.String()))
	if err != nil {
		return nil, err
	}
	var rec BanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ban record: %w", err)
	}
	return &rec, nil
}

// Put persists a ban record.
func (bs *BanStore) Put(rec *BanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}
	return bs.db.Put(banRecordKey(rec.ID), data)
}

// Delete removes a ban record.
func (bs *BanStore) Delete(id peer.ID) error {
	return bs.db.Delete(banRecordKey(id.String()))
}

// ForEach iterates over all ban records.
func (bs *BanStore) ForEach(fn func(*BanRecord) error) error {
	return bs.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt records.
		}
		return fn(&rec)
	})
}

// PruneExpired removes lapsed and corrupt ban records. Returns the
// number pruned.
func (bs *BanStore) PruneExpired() (int, error) {
	now := time.Now().Unix()
	var toDelete [][]byte

	err := bs.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil || (rec.ExpiresAt > 0 && now >= rec.ExpiresAt) {
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)
			toDelete = append(toDelete, keyCopy)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}

	for _, k := range toDelete {
		if err := bs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete expired ban: %w", err)
		}
	}
	return len(toDelete), nil
}
