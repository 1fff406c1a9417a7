package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the query engine and HTTP surface.
// All methods are safe on a nil *Collector.
type Collector struct {
	gatherer prometheus.Gatherer

	Queries        *prometheus.CounterVec
	QueryDurations *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec

	SnapshotOutlets prometheus.Gauge
	Rebuilds        *prometheus.CounterVec
	RebuildDuration *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
}

// NewCollector registers metrics against reg, defaulting to the global
// registry when nil. Registering twice on one registry reuses the collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfinder_queries_total",
		Help: "Outlet queries by mode (area, range, all) and resolved state.",
	}, []string{"mode", "state"}), "shopfinder_queries_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopfinder_query_duration_seconds",
		Help:    "Outlet query latency in seconds.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"mode"}), "shopfinder_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfinder_query_cache_lookups_total",
		Help: "Query cache lookups by result (hit, miss, error, bypass).",
	}, []string{"result"}), "shopfinder_query_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	outlets, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopfinder_snapshot_outlets",
		Help: "Outlets held by the current preload snapshot.",
	}), "shopfinder_snapshot_outlets")
	if err != nil {
		return nil, err
	}

	rebuilds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfinder_snapshot_rebuilds_total",
		Help: "Preload snapshot rebuilds by result (ok, error).",
	}, []string{"result"}), "shopfinder_snapshot_rebuilds_total")
	if err != nil {
		return nil, err
	}

	rebuildDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopfinder_snapshot_rebuild_duration_seconds",
		Help:    "Preload snapshot rebuild latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"result"}), "shopfinder_snapshot_rebuild_duration_seconds")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopfinder_http_requests_total",
		Help: "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"}), "shopfinder_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Queries:         queries,
		QueryDurations:  durations,
		CacheLookups:    lookups,
		SnapshotOutlets: outlets,
		Rebuilds:        rebuilds,
		RebuildDuration: rebuildDuration,
		HTTPRequests:    httpRequests,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveQuery records one finished query.
func (c *Collector) ObserveQuery(mode, state string, took time.Duration) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(mode, state).Inc()
	c.QueryDurations.WithLabelValues(mode).Observe(took.Seconds())
}

// ObserveCacheLookup records a query cache lookup outcome.
func (c *Collector) ObserveCacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveRebuild satisfies preload.Observer.
func (c *Collector) ObserveRebuild(count int, took time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		c.SnapshotOutlets.Set(float64(count))
	}
	c.Rebuilds.WithLabelValues(result).Inc()
	c.RebuildDuration.WithLabelValues(result).Observe(took.Seconds())
}

// ObserveHTTP records a served request.
func (c *Collector) ObserveHTTP(route string, code int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
