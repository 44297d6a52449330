package track

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// cacheShards spreads devices across independent locks so unrelated devices
// never contend on upsert. Per-device mutual exclusion is the only hard
// requirement; a snapshot is not an atomic cut across shards.
const cacheShards = 16

// LiveCache holds the most recent known position per device. Last write
// wins per key by ReceivedAt, not by arrival order, so reordered deliveries
// cannot roll a device backwards.
type LiveCache struct {
	shards [cacheShards]cacheShard
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]PositionReport
}

func NewLiveCache() *LiveCache {
	c := &LiveCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]PositionReport)
	}
	return c
}

func (c *LiveCache) shard(deviceID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return &c.shards[h.Sum32()%cacheShards]
}

// Upsert replaces the entry for r.DeviceID unless the cached entry is
// already newer. Returns false when r lost the ordering race.
func (c *LiveCache) Upsert(r PositionReport) bool {
	s := c.shard(r.DeviceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[r.DeviceID]; ok && cur.ReceivedAt.After(r.ReceivedAt) {
		return false
	}
	s.entries[r.DeviceID] = r
	return true
}

func (c *LiveCache) Get(deviceID string) (PositionReport, bool) {
	s := c.shard(deviceID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[deviceID]
	return r, ok
}

// Snapshot returns a point-in-time copy, sorted by device ID for a stable
// wire representation. Callers own the slice; it never aliases cache state.
func (c *LiveCache) Snapshot() []PositionReport {
	out := make([]PositionReport, 0, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, r := range s.entries {
			out = append(out, r)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Evict removes one entry. No-op if absent.
func (c *LiveCache) Evict(deviceID string) {
	s := c.shard(deviceID)
	s.mu.Lock()
	delete(s.entries, deviceID)
	s.mu.Unlock()
}

// EvictOlder removes every entry whose ReceivedAt is before cutoff and
// returns the evicted device IDs. The age check and the delete happen under
// the same shard lock, so a report arriving mid-sweep is never lost.
func (c *LiveCache) EvictOlder(cutoff time.Time) []string {
	var evicted []string
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, r := range s.entries {
			if r.ReceivedAt.Before(cutoff) {
				delete(s.entries, id)
				evicted = append(evicted, id)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

func (c *LiveCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
