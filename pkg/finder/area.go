package finder

import (
	"context"
	"time"

	"shopfinder/pkg/geo"
	"shopfinder/pkg/logging"
	"shopfinder/pkg/model"
	"shopfinder/pkg/preload"
)

// AreaRequest is a snapshot scan around a map center.
type AreaRequest struct {
	Center geo.Point
	Zoom   int
	Radius int // 0 derives the radius from Zoom
	User   *geo.Point
}

// ClusterRequest groups snapshot outlets around a map center into H3 cells.
type ClusterRequest struct {
	Center geo.Point
	Zoom   int
	Radius int // 0 derives the radius from Zoom
}

// ClusterResult is the clustered overview of an area.
type ClusterResult struct {
	Clusters     []geo.Cluster     `json:"clusters"`
	Center       *model.Coordinate `json:"center_location"`
	ZoomLevel    int               `json:"zoom_level"`
	RadiusUsed   int               `json:"radius_used"`
	Resolution   int               `json:"resolution"`
	TotalOutlets int               `json:"total_outlets"`
	Degraded     bool              `json:"degraded,omitempty"`
}

func (s *Service) areaRadius(zoom, explicit int) (int, error) {
	if err := validateZoom(zoom); err != nil {
		return 0, err
	}
	if explicit == 0 {
		return geo.RadiusForZoom(zoom), nil
	}
	if err := s.validateRadius(explicit); err != nil {
		return 0, err
	}
	return explicit, nil
}

// snapshot resolves the area tiers: a fresh snapshot, else a cold rebuild,
// else the expired snapshot as a degraded answer.
func (s *Service) snapshot(ctx context.Context, mode string) (*preload.Snapshot, State, error) {
	state := StateSnapshotReady
	snap, ok := s.preload.Snapshot()
	if !ok {
		state = StateColdRebuildNeeded
	}

	for {
		switch state {
		case StateSnapshotReady:
			return snap, state, nil

		case StateColdRebuildNeeded:
			fresh, err := s.preload.Ensure(ctx)
			if err == nil {
				return fresh, state, nil
			}
			stale, ok := s.preload.Stale()
			if !ok {
				return nil, state, unavailable("rebuild snapshot", err)
			}
			s.logger.Warn("Serving expired snapshot after failed rebuild", "mode", mode, "built_at", stale.BuiltAt, "error", err)
			snap = stale
			state = StateDegraded

		case StateDegraded:
			return snap, state, nil
		}
	}
}

// AreaQuery scans the preload snapshot around req.Center. It never touches
// the query cache.
func (s *Service) AreaQuery(ctx context.Context, req AreaRequest) (*model.QueryResult, error) {
	start := time.Now()

	if err := validateCenter(req.Center); err != nil {
		return nil, err
	}
	radius, err := s.areaRadius(req.Zoom, req.Radius)
	if err != nil {
		return nil, err
	}
	if err := validateUser(req.User); err != nil {
		return nil, err
	}

	snap, state, err := s.snapshot(ctx, ModeArea)
	if err != nil {
		s.observe(ModeArea, state, start)
		return nil, err
	}

	shops := rank(snap.Outlets, req.Center, float64(radius), req.User, geo.ResultLimit(req.Zoom), nil)

	res := &model.QueryResult{
		Shops:          shops,
		Center:         coordinate(&req.Center),
		UserLocation:   coordinate(req.User),
		ZoomLevel:      req.Zoom,
		RadiusUsed:     radius,
		TotalFound:     len(shops),
		TotalCached:    len(snap.Outlets),
		Cached:         true,
		Degraded:       state == StateDegraded,
		Source:         model.SourceSmartCache,
		LastUpdate:     snap.BuiltAt.Unix(),
		GeneratedAtUTC: s.now().UTC(),
	}

	s.observe(ModeArea, state, start)
	logging.Trace(s.logger, "Area query", "state", state, "lat", req.Center.Lat, "lon", req.Center.Lon, "zoom", req.Zoom, "found", len(shops))
	return res, nil
}

// AllOutlets returns the whole snapshot. With a user position every outlet
// carries its distance from the user and results are sorted by it.
func (s *Service) AllOutlets(ctx context.Context, user *geo.Point) (*model.QueryResult, error) {
	start := time.Now()

	if err := validateUser(user); err != nil {
		return nil, err
	}

	snap, state, err := s.snapshot(ctx, ModeAll)
	if err != nil {
		s.observe(ModeAll, state, start)
		return nil, err
	}

	var shops []model.OutletHit
	if user != nil {
		// Every outlet is within half the circumference
		shops = rank(snap.Outlets, *user, geo.EarthRadius*4, user, 0, nil)
	} else {
		shops = make([]model.OutletHit, len(snap.Outlets))
		for i := range snap.Outlets {
			shops[i] = model.OutletHit{OutletView: snap.Outlets[i]}
		}
	}

	res := &model.QueryResult{
		Shops:          shops,
		UserLocation:   coordinate(user),
		TotalFound:     len(shops),
		TotalCached:    len(snap.Outlets),
		Cached:         true,
		Degraded:       state == StateDegraded,
		Source:         model.SourcePreloadedCache,
		LastUpdate:     snap.BuiltAt.Unix(),
		GeneratedAtUTC: s.now().UTC(),
	}

	s.observe(ModeAll, state, start)
	return res, nil
}

// Clusters groups the snapshot outlets within the area radius into H3 cells
// sized for the zoom level.
func (s *Service) Clusters(ctx context.Context, req ClusterRequest) (*ClusterResult, error) {
	start := time.Now()

	if err := validateCenter(req.Center); err != nil {
		return nil, err
	}
	radius, err := s.areaRadius(req.Zoom, req.Radius)
	if err != nil {
		return nil, err
	}

	snap, state, err := s.snapshot(ctx, ModeClusters)
	if err != nil {
		s.observe(ModeClusters, state, start)
		return nil, err
	}

	hits := rank(snap.Outlets, req.Center, float64(radius), nil, 0, nil)
	points := make([]geo.Point, len(hits))
	for i, h := range hits {
		points[i] = geo.Point{Lat: h.Lat, Lon: h.Lon}
	}

	clusters, err := geo.ClusterPoints(points, req.Zoom)
	if err != nil {
		return nil, err
	}

	s.observe(ModeClusters, state, start)
	return &ClusterResult{
		Clusters:     clusters,
		Center:       coordinate(&req.Center),
		ZoomLevel:    req.Zoom,
		RadiusUsed:   radius,
		Resolution:   geo.ClusterResolution(req.Zoom),
		TotalOutlets: len(points),
		Degraded:     state == StateDegraded,
	}, nil
}
