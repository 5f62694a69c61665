// Package cachestats implements the process-wide, per-tenant prompt
// cache bookkeeping described in and 5: a sharded
// container with exclusive access per tenant; snapshot reads copy a
// tenant's stats under that tenant's mutex.
package cachestats

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// Snapshot is an immutable point-in-time read of one tenant's stats.
type Snapshot struct {
	TotalRequests    int64
	Hits             int64
	Misses           int64
	HitRate          float64
	TotalCachedTokens int64
	TotalSavingsUSD  float64
}

type tenantStats struct {
	mu sync.Mutex
	Snapshot
}

type shard struct {
	mu      sync.RWMutex
	tenants map[string]*tenantStats
}

// Store is the process-wide sharded container. Zero value is not usable;
// construct with New.
type Store struct {
	shards [shardCount]*shard
}

// New constructs an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{tenants: make(map[string]*tenantStats)}
	}
	return s
}

func (s *Store) shardFor(tenantID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) entry(tenantID string) *tenantStats {
	sh := s.shardFor(tenantID)

	sh.mu.RLock()
	t, ok := sh.tenants[tenantID]
	sh.mu.RUnlock()
	if ok {
		return t
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	t, ok = sh.tenants[tenantID]
	if ok {
		return t
	}
	t = &tenantStats{}
	sh.tenants[tenantID] = t
	return t
}

// Record updates tenant stats atomically for one completion: hit or
// miss, cached tokens consumed, and dollars saved versus the uncached
// cost. Call once per completion that opted into
// caching.
func (s *Store) Record(tenantID string, hit bool, cachedTokens int64, savingsUSD float64) {
	t := s.entry(tenantID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.TotalRequests++
	if hit {
		t.Hits++
	} else {
		t.Misses++
	}
	t.TotalCachedTokens += cachedTokens
	t.TotalSavingsUSD += savingsUSD
	t.HitRate = hitRate(t.Hits, t.TotalRequests)
}

func hitRate(hits, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Get returns a snapshot for tenantID. A tenant with no recorded
// activity yields a zeroed Snapshot rather than an error.
func (s *Store) Get(tenantID string) Snapshot {
	sh := s.shardFor(tenantID)
	sh.mu.RLock()
	t, ok := sh.tenants[tenantID]
	sh.mu.RUnlock()
	if !ok {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Snapshot
}

// All returns a snapshot for every tenant that has recorded activity.
func (s *Store) All() map[string]Snapshot {
	out := make(map[string]Snapshot)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for tenantID, t := range sh.tenants {
			t.mu.Lock()
			out[tenantID] = t.Snapshot
			t.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return out
}

// Clear resets tenantID's stats to zero. If tenantID is empty, clears
// every tenant.
func (s *Store) Clear(tenantID string) {
	if tenantID == "" {
		for _, sh := range s.shards {
			sh.mu.Lock()
			sh.tenants = make(map[string]*tenantStats)
			sh.mu.Unlock()
		}
		return
	}
	sh := s.shardFor(tenantID)
	sh.mu.Lock()
	delete(sh.tenants, tenantID)
	sh.mu.Unlock()
}
