package finder

import (
	"context"
	"time"

	"shopfinder/pkg/cache"
	"shopfinder/pkg/geo"
	"shopfinder/pkg/logging"
	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

// RangeRequest is a bounded store query around a center.
type RangeRequest struct {
	Center  geo.Point
	Zoom    int
	Radius  int    // 0 uses Config.DefaultRadius
	Filter  string // Comma-separated flavors; only the first is applied
	User    *geo.Point
	NoCache bool // Skip the cache read; the result is still written
}

func (s *Service) validateRange(req *RangeRequest) error {
	if err := validateCenter(req.Center); err != nil {
		return err
	}
	if err := validateZoom(req.Zoom); err != nil {
		return err
	}
	if req.Radius == 0 {
		req.Radius = s.cfg.DefaultRadius
	}
	if err := s.validateRadius(req.Radius); err != nil {
		return err
	}
	if err := validateUser(req.User); err != nil {
		return err
	}
	if len(req.Filter) > maxFilterLength {
		return Invalidf("filter longer than %d bytes", maxFilterLength)
	}
	return nil
}

// RangeQuery answers from the query cache, else from the outlet store, else
// from an expired snapshot marked degraded. Input is validated before any
// cache or store access.
func (s *Service) RangeQuery(ctx context.Context, req RangeRequest) (*model.QueryResult, error) {
	start := time.Now()

	if err := s.validateRange(&req); err != nil {
		return nil, err
	}

	flavor := firstFlavor(req.Filter)
	key := cache.NewSignature(req.Center, req.Zoom, req.Radius, flavor, req.User).Key()
	ttl := s.cfg.TTL.ForZoom(req.Zoom)

	var (
		state       = StateStoreFetch
		cached      *model.QueryResult
		cacheFailed bool
		storeErr    error
	)

	if req.NoCache {
		s.metrics.ObserveCacheLookup("bypass")
	} else {
		gctx, cancel := s.bounded(ctx)
		hit, ok, err := s.cache.Get(gctx, key)
		cancel()
		switch {
		case err != nil:
			s.logger.Warn("Query cache read failed", "key", key, "error", err)
			s.metrics.ObserveCacheLookup("error")
			cacheFailed = true
		case ok:
			s.metrics.ObserveCacheLookup("hit")
			s.tracker.TrackCacheHit(ModeRange)
			cached = hit
			state = StateCacheHit
		default:
			s.metrics.ObserveCacheLookup("miss")
			s.tracker.TrackCacheMiss(ModeRange)
		}
	}

	for {
		switch state {
		case StateCacheHit:
			res := *cached
			res.Cached = true
			res.ZoomLevel = req.Zoom
			res.RadiusUsed = req.Radius
			s.observe(ModeRange, state, start)
			logging.Trace(s.logger, "Range query served from cache", "key", key, "found", res.TotalFound)
			return &res, nil

		case StateStoreFetch:
			res, err := s.fetch(ctx, req, flavor, ttl)
			if err != nil {
				s.tracker.TrackStoreFailure(ModeRange)
				s.logger.Warn("Outlet store query failed", "key", key, "error", err)
				storeErr = err
				state = StateDegraded
				continue
			}
			s.tracker.TrackStoreFetch(ModeRange)

			if err := s.put(ctx, key, res, ttl); err != nil {
				s.logger.Warn("Query cache write failed", "key", key, "error", err)
				cacheFailed = true
			}
			if cacheFailed {
				out := *res
				out.Degraded = true
				res = &out
			}
			s.observe(ModeRange, state, start)
			logging.Trace(s.logger, "Range query served from store", "key", key, "found", res.TotalFound)
			return res, nil

		case StateDegraded:
			res, ok := s.degradedRange(req, flavor)
			s.observe(ModeRange, state, start)
			if !ok {
				return nil, unavailable("range query", storeErr)
			}
			return res, nil
		}
	}
}

func (s *Service) put(ctx context.Context, key string, res *model.QueryResult, ttl time.Duration) error {
	pctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.cache.Put(pctx, key, res, ttl)
}

func (s *Service) fetch(ctx context.Context, req RangeRequest, flavor string, ttl time.Duration) (*model.QueryResult, error) {
	fctx, cancel := s.bounded(ctx)
	defer cancel()

	outlets, err := s.store.RangeQuery(fctx, store.RangeFilter{
		Bounds:     geo.BoundingBox(req.Center, float64(req.Radius)),
		ActiveOnly: true,
		Flavor:     flavor,
		Limit:      s.cfg.FetchCeiling,
	})
	if err != nil {
		return nil, err
	}

	views := make([]model.OutletView, len(outlets))
	for i, o := range outlets {
		views[i] = model.NewOutletView(o)
	}
	shops := rank(views, req.Center, float64(req.Radius), req.User, geo.ResultLimit(req.Zoom), nil)

	return &model.QueryResult{
		Shops:          shops,
		Center:         coordinate(&req.Center),
		UserLocation:   coordinate(req.User),
		ZoomLevel:      req.Zoom,
		RadiusUsed:     req.Radius,
		TotalFound:     len(shops),
		FilterApplied:  flavor != "",
		Source:         model.SourceLocalDatabase,
		CacheTTL:       int(ttl.Seconds()),
		GeneratedAtUTC: s.now().UTC(),
	}, nil
}

// degradedRange answers from the last snapshot, fresh or not. The result is
// never written to the query cache.
func (s *Service) degradedRange(req RangeRequest, flavor string) (*model.QueryResult, bool) {
	snap, ok := s.preload.Stale()
	if !ok {
		return nil, false
	}

	var keep func(*model.OutletView) bool
	if flavor != "" {
		keep = func(v *model.OutletView) bool { return hasFlavor(v, flavor) }
	}
	shops := rank(snap.Outlets, req.Center, float64(req.Radius), req.User, geo.ResultLimit(req.Zoom), keep)

	s.logger.Warn("Serving range query from snapshot", "built_at", snap.BuiltAt, "found", len(shops))
	return &model.QueryResult{
		Shops:          shops,
		Center:         coordinate(&req.Center),
		UserLocation:   coordinate(req.User),
		ZoomLevel:      req.Zoom,
		RadiusUsed:     req.Radius,
		TotalFound:     len(shops),
		TotalCached:    len(snap.Outlets),
		FilterApplied:  flavor != "",
		Cached:         true,
		Degraded:       true,
		Source:         model.SourceSmartCache,
		LastUpdate:     snap.BuiltAt.Unix(),
		GeneratedAtUTC: s.now().UTC(),
	}, true
}
