package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"shopfinder/pkg/model"
)

// MemoryCache keeps one expirable LRU per TTL tier.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	tiers      map[time.Duration]*expirable.LRU[string, model.QueryResult]
}

// NewMemoryCache creates tiers for the given TTLs up front; other TTLs get a
// tier on first Put. maxEntries bounds each tier, 0 means unbounded.
func NewMemoryCache(maxEntries int, ttls ...time.Duration) *MemoryCache {
	c := &MemoryCache{
		maxEntries: maxEntries,
		tiers:      make(map[time.Duration]*expirable.LRU[string, model.QueryResult]),
	}
	for _, ttl := range ttls {
		c.tier(ttl)
	}
	return c
}

// tier returns the LRU for ttl. Caller holds mu.
func (c *MemoryCache) tier(ttl time.Duration) *expirable.LRU[string, model.QueryResult] {
	t, ok := c.tiers[ttl]
	if !ok {
		t = expirable.NewLRU[string, model.QueryResult](c.maxEntries, nil, ttl)
		c.tiers[ttl] = t
	}
	return t
}

func (c *MemoryCache) Get(_ context.Context, key string) (*model.QueryResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tiers {
		if v, ok := t.Get(key); ok {
			return v.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, result *model.QueryResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A key lives in exactly one tier
	for d, t := range c.tiers {
		if d != ttl {
			t.Remove(key)
		}
	}
	c.tier(ttl).Add(key, *result.Clone())
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tiers {
		n += t.Len()
		t.Purge()
	}
	return n, nil
}

func (c *MemoryCache) Info(_ context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := Info{Backend: "memory"}
	for d, t := range c.tiers {
		n := t.Len()
		info.Entries += n
		info.Tiers = append(info.Tiers, TierInfo{TTLSeconds: int(d.Seconds()), Entries: n})
	}
	sort.Slice(info.Tiers, func(i, j int) bool { return info.Tiers[i].TTLSeconds < info.Tiers[j].TTLSeconds })
	return info, nil
}
