package cache

import "sync/atomic"

// Metrics tracks tiered cache counters. All fields are updated with
// atomic operations; read them through Snapshot.
type Metrics struct {
	SharedHits    int64
	LocalHits     int64
	Misses        int64
	Sets          int64
	Deletes       int64
	Invalidations int64
	SharedErrors  int64
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		SharedHits:    atomic.LoadInt64(&m.SharedHits),
		LocalHits:     atomic.LoadInt64(&m.LocalHits),
		Misses:        atomic.LoadInt64(&m.Misses),
		Sets:          atomic.LoadInt64(&m.Sets),
		Deletes:       atomic.LoadInt64(&m.Deletes),
		Invalidations: atomic.LoadInt64(&m.Invalidations),
		SharedErrors:  atomic.LoadInt64(&m.SharedErrors),
	}
}

// HitRate returns hits over total lookups, or 0 when nothing was looked
// up yet.
func (m *Metrics) HitRate() float64 {
	hits := atomic.LoadInt64(&m.SharedHits) + atomic.LoadInt64(&m.LocalHits)
	total := hits + atomic.LoadInt64(&m.Misses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
