package finder

import (
	"context"
	"time"

	"shopfinder/pkg/cache"
	"shopfinder/pkg/tracker"
)

// Clear scopes accepted by ClearCache.
const (
	ScopeShops   = "shops"   // Drop the preload snapshot
	ScopeQueries = "queries" // Drop range query entries
	ScopeAll     = "all"
)

// Stats describes both cache tiers and per-mode counters.
type Stats struct {
	SnapshotOutlets    int                          `json:"snapshot_outlets"`
	SnapshotFresh      bool                         `json:"snapshot_fresh"`
	LastRefresh        *time.Time                   `json:"last_refresh,omitempty"`
	SnapshotTTLSeconds int                          `json:"snapshot_ttl_seconds"`
	QueryCache         cache.Info                   `json:"query_cache"`
	QueryCacheError    string                       `json:"query_cache_error,omitempty"`
	Modes              map[string]tracker.ModeStats `json:"modes"`
}

// ForcePreload rebuilds the snapshot now.
func (s *Service) ForcePreload(ctx context.Context) (int, time.Time, error) {
	n, err := s.preload.Rebuild(ctx)
	if err != nil {
		return 0, time.Time{}, unavailable("preload", err)
	}
	builtAt := s.now()
	if snap, ok := s.preload.Stale(); ok {
		builtAt = snap.BuiltAt
	}
	s.logger.Info("Snapshot preloaded on request", "outlets", n)
	return n, builtAt, nil
}

// CacheStats reports snapshot and query cache state. A failing query cache
// backend is reported in the result rather than as an error.
func (s *Service) CacheStats(ctx context.Context) Stats {
	st := Stats{
		SnapshotTTLSeconds: int(s.preload.TTL().Seconds()),
		Modes:              s.tracker.Snapshot(),
	}

	if snap, ok := s.preload.Stale(); ok {
		st.SnapshotOutlets = len(snap.Outlets)
	}
	if at, ok := s.preload.LastRefreshedAt(); ok {
		st.SnapshotFresh = true
		st.LastRefresh = &at
	}

	ictx, cancel := s.bounded(ctx)
	defer cancel()
	info, err := s.cache.Info(ictx)
	if err != nil {
		s.logger.Warn("Query cache info failed", "error", err)
		st.QueryCacheError = err.Error()
	}
	st.QueryCache = info
	return st
}

// ClearCache drops the given scope and returns how many query entries were removed.
func (s *Service) ClearCache(ctx context.Context, scope string) (int, error) {
	switch scope {
	case ScopeShops, ScopeQueries, ScopeAll:
	default:
		return 0, Invalidf("unknown cache scope %q", scope)
	}

	if scope == ScopeShops || scope == ScopeAll {
		s.preload.Invalidate()
	}

	n := 0
	if scope == ScopeQueries || scope == ScopeAll {
		cctx, cancel := s.bounded(ctx)
		var err error
		n, err = s.cache.Clear(cctx)
		cancel()
		if err != nil {
			return 0, unavailable("clear query cache", err)
		}
	}

	s.logger.Info("Cache cleared", "scope", scope, "entries", n)
	return n, nil
}
