package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

// SQLiteCache persists query results in the store's cache table, so entries
// survive restarts. Expired rows read as misses and are removed lazily.
type SQLiteCache struct {
	store store.CacheStore
	now   func() time.Time
}

// NewSQLiteCache creates a cache over s.
func NewSQLiteCache(s store.CacheStore) *SQLiteCache {
	return &SQLiteCache{store: s, now: time.Now}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (*model.QueryResult, bool, error) {
	data, expiresAt, found, err := c.store.GetCache(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	if !c.now().Before(expiresAt) {
		if err := c.store.DeleteCache(ctx, key); err != nil {
			slog.Debug("Failed to drop expired cache row", "key", key, "error", err)
		}
		return nil, false, nil
	}

	var res model.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return &res, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, result *model.QueryResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	if err := c.store.SetCache(ctx, key, data, c.now().Add(ttl)); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) (int, error) {
	return c.store.ClearCache(ctx, KeyPrefix)
}

func (c *SQLiteCache) Info(ctx context.Context) (Info, error) {
	n, err := c.store.CountCache(ctx, KeyPrefix, c.now())
	if err != nil {
		return Info{Backend: "sqlite"}, err
	}
	return Info{Backend: "sqlite", Entries: n}, nil
}
