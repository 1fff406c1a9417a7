package finder

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"shopfinder/pkg/cache"
	"shopfinder/pkg/geo"
	"shopfinder/pkg/metrics"
	"shopfinder/pkg/model"
	"shopfinder/pkg/preload"
	"shopfinder/pkg/store"
	"shopfinder/pkg/tracker"
)

// Catalog is the read side used for platform stats and product search.
type Catalog interface {
	CountActiveOutlets(ctx context.Context) (int, error)
	CountActiveProducts(ctx context.Context) (int, error)
	SearchProducts(ctx context.Context, q string, limit int) ([]*model.Product, error)
}

// Config holds query limits. Zero fields take the defaults below.
type Config struct {
	StoreTimeout  time.Duration
	FetchCeiling  int
	DefaultRadius int // Range queries without a radius
	MinRadius     int
	MaxRadius     int
	TTL           cache.TTLPolicy
	StatsTTL      time.Duration
}

// Defaults.
const (
	DefaultStoreTimeout  = 5 * time.Second
	DefaultFetchCeiling  = 2500
	DefaultRangeRadius   = 2000
	DefaultMinRadius     = 100
	DefaultMaxRadius     = 10_000_000
	DefaultStatsTTL      = 30 * time.Minute
	maxFilterLength      = 256
	searchResultLimit    = 10
	minSearchQueryLength = 2
)

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.FetchCeiling <= 0 {
		c.FetchCeiling = DefaultFetchCeiling
	}
	if c.DefaultRadius <= 0 {
		c.DefaultRadius = DefaultRangeRadius
	}
	if c.MinRadius <= 0 {
		c.MinRadius = DefaultMinRadius
	}
	if c.MaxRadius <= 0 {
		c.MaxRadius = DefaultMaxRadius
	}
	if c.TTL == (cache.TTLPolicy{}) {
		c.TTL = cache.DefaultTTLPolicy
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = DefaultStatsTTL
	}
	return c
}

// Deps are the collaborators a Service is built from. Metrics and Tracker are optional.
type Deps struct {
	Store   store.OutletStore
	Catalog Catalog
	Preload *preload.Cache
	Cache   cache.QueryCache
	Metrics *metrics.Collector
	Tracker *tracker.Tracker
}

// Service answers outlet queries from the preload snapshot, the query cache
// and the outlet store.
type Service struct {
	store   store.OutletStore
	catalog Catalog
	preload *preload.Cache
	cache   cache.QueryCache
	metrics *metrics.Collector
	tracker *tracker.Tracker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	statsGroup  singleflight.Group
	statsMu     sync.Mutex // Guards statsCached and statsAt only
	statsCached *PlatformStats
	statsAt     time.Time
}

// NewService wires a Service.
func NewService(d Deps, cfg Config) *Service {
	tr := d.Tracker
	if tr == nil {
		tr = tracker.New()
	}
	return &Service{
		store:   d.Store,
		catalog: d.Catalog,
		preload: d.Preload,
		cache:   d.Cache,
		metrics: d.Metrics,
		tracker: tr,
		cfg:     cfg.withDefaults(),
		logger:  slog.With("component", "finder"),
		now:     time.Now,
	}
}

// bounded derives the deadline applied to every store, catalog and query
// cache call.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *Service) validateRadius(r int) error {
	if r < s.cfg.MinRadius || r > s.cfg.MaxRadius {
		return Invalidf("radius %d outside [%d, %d] m", r, s.cfg.MinRadius, s.cfg.MaxRadius)
	}
	return nil
}

func validateCenter(p geo.Point) error {
	if !geo.ValidLat(p.Lat) {
		return Invalidf("latitude %v outside [-90, 90]", p.Lat)
	}
	if !geo.ValidLon(p.Lon) {
		return Invalidf("longitude %v outside [-180, 180]", p.Lon)
	}
	return nil
}

func validateUser(p *geo.Point) error {
	if p == nil {
		return nil
	}
	if !p.Valid() {
		return Invalidf("user position %v,%v out of range", p.Lat, p.Lon)
	}
	return nil
}

func validateZoom(z int) error {
	if z < geo.MinZoom || z > geo.MaxZoom {
		return Invalidf("zoom %d outside [%d, %d]", z, geo.MinZoom, geo.MaxZoom)
	}
	return nil
}

// firstFlavor returns the first comma-separated token of a product filter.
// Later tokens are ignored.
func firstFlavor(filter string) string {
	first, _, _ := strings.Cut(filter, ",")
	return strings.TrimSpace(first)
}

func coordinate(p *geo.Point) *model.Coordinate {
	if p == nil {
		return nil
	}
	return &model.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

type candidate struct {
	view     *model.OutletView
	dist     float64
	userDist float64
}

// rank keeps views within radius of center, sorts them by distance from the
// user when given (else from center) and truncates to limit. Sorting uses
// exact distances; ties break on id.
func rank(views []model.OutletView, center geo.Point, radius float64, user *geo.Point, limit int, keep func(*model.OutletView) bool) []model.OutletHit {
	cands := make([]candidate, 0, 64)
	for i := range views {
		v := &views[i]
		if keep != nil && !keep(v) {
			continue
		}
		pos := geo.Point{Lat: v.Lat, Lon: v.Lon}
		d := geo.Distance(center, pos)
		if d > radius {
			continue
		}
		c := candidate{view: v, dist: d}
		if user != nil {
			c.userDist = geo.Distance(*user, pos)
		}
		cands = append(cands, c)
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		ka, kb := a.dist, b.dist
		if user != nil {
			ka, kb = a.userDist, b.userDist
		}
		if ka != kb {
			return ka < kb
		}
		return a.view.ID < b.view.ID
	})

	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}

	hits := make([]model.OutletHit, len(cands))
	for i, c := range cands {
		hits[i] = model.OutletHit{OutletView: *c.view, Distance: int(math.Round(c.dist))}
		if user != nil {
			du := int(math.Round(c.userDist))
			hits[i].DistanceFromUser = &du
		}
	}
	return hits
}

// hasFlavor reports whether any product flavor contains flavor, ignoring case.
func hasFlavor(v *model.OutletView, flavor string) bool {
	want := strings.ToLower(flavor)
	for _, p := range v.Products {
		if strings.Contains(strings.ToLower(p.Flavor), want) {
			return true
		}
	}
	return false
}

func (s *Service) observe(mode string, state State, start time.Time) {
	s.tracker.TrackQuery(mode)
	if state == StateDegraded {
		s.tracker.TrackDegraded(mode)
	}
	s.metrics.ObserveQuery(mode, state.String(), time.Since(start))
}
