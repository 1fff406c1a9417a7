package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker counts query outcomes per query mode for the cache stats endpoint.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ModeStats
}

// ModeStats holds counters for one query mode.
// Fields are accessed atomically.
type ModeStats struct {
	Queries       int64 `json:"queries"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	StoreFetches  int64 `json:"store_fetches"`
	StoreFailures int64 `json:"store_failures"`
	Degraded      int64 `json:"degraded"`
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s ModeStats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ModeStats),
	}
}

// getStats returns the stats object for a mode, creating it if needed.
func (t *Tracker) getStats(mode string) *ModeStats {
	t.mu.RLock()
	s, ok := t.stats[mode]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[mode]; ok {
		return s
	}
	s = &ModeStats{}
	t.stats[mode] = s
	return s
}

func (t *Tracker) TrackQuery(mode string) {
	atomic.AddInt64(&t.getStats(mode).Queries, 1)
}

func (t *Tracker) TrackCacheHit(mode string) {
	atomic.AddInt64(&t.getStats(mode).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(mode string) {
	atomic.AddInt64(&t.getStats(mode).CacheMisses, 1)
}

func (t *Tracker) TrackStoreFetch(mode string) {
	atomic.AddInt64(&t.getStats(mode).StoreFetches, 1)
}

func (t *Tracker) TrackStoreFailure(mode string) {
	atomic.AddInt64(&t.getStats(mode).StoreFailures, 1)
}

func (t *Tracker) TrackDegraded(mode string) {
	atomic.AddInt64(&t.getStats(mode).Degraded, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ModeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ModeStats, len(t.stats))
	for k, v := range t.stats {
		result[k] = ModeStats{
			Queries:       atomic.LoadInt64(&v.Queries),
			CacheHits:     atomic.LoadInt64(&v.CacheHits),
			CacheMisses:   atomic.LoadInt64(&v.CacheMisses),
			StoreFetches:  atomic.LoadInt64(&v.StoreFetches),
			StoreFailures: atomic.LoadInt64(&v.StoreFailures),
			Degraded:      atomic.LoadInt64(&v.Degraded),
		}
	}
	return result
}
