package cachestats_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abrahaamv/queryorchestrator/cachestats"
)

func TestRecord_InvariantsHold(t *testing.T) {
	s := cachestats.New()
	s.Record("tenant-1", true, 100, 0.01)
	s.Record("tenant-1", false, 0, 0)
	s.Record("tenant-1", true, 50, 0.005)

	snap := s.Get("tenant-1")
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.Equal(t, snap.Hits+snap.Misses, snap.TotalRequests)
	assert.InDelta(t, float64(snap.Hits)/float64(snap.TotalRequests), snap.HitRate, 1e-9)
}

func TestGet_UnknownTenantIsZeroed(t *testing.T) {
	s := cachestats.New()
	snap := s.Get("nobody")
	assert.Equal(t, cachestats.Snapshot{}, snap)
}

func TestClear_SingleTenant(t *testing.T) {
	s := cachestats.New()
	s.Record("tenant-1", true, 10, 0.1)
	s.Clear("tenant-1")
	assert.Equal(t, cachestats.Snapshot{}, s.Get("tenant-1"))
}

func TestClear_AllTenants(t *testing.T) {
	s := cachestats.New()
	s.Record("tenant-1", true, 10, 0.1)
	s.Record("tenant-2", true, 10, 0.1)
	s.Clear("")
	assert.Empty(t, s.All())
}

func TestRecord_ConcurrentUpdatesAreAtomicPerTenant(t *testing.T) {
	s := cachestats.New()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Record("shared-tenant", i%2 == 0, 1, 0.001)
		}(i)
	}
	wg.Wait()

	snap := s.Get("shared-tenant")
	assert.Equal(t, int64(200), snap.TotalRequests)
	assert.Equal(t, snap.Hits+snap.Misses, snap.TotalRequests)
}

func TestRecord_NoCrossTenantLocking(t *testing.T) {
	s := cachestats.New()
	s.Record("tenant-a", true, 1, 0.1)
	s.Record("tenant-b", false, 1, 0.1)

	a := s.Get("tenant-a")
	b := s.Get("tenant-b")
	assert.Equal(t, int64(1), a.Hits)
	assert.Equal(t, int64(1), b.Misses)
}
