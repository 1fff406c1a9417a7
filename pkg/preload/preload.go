package preload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTTL     = 6 * time.Hour
	DefaultTimeout = 30 * time.Second
)

// ErrRebuildFailed wraps store failures during a rebuild.
var ErrRebuildFailed = errors.New("snapshot rebuild failed")

// Snapshot is one immutable build of every active outlet.
type Snapshot struct {
	Outlets []model.OutletView
	BuiltAt time.Time
}

// Observer receives rebuild outcomes. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRebuild(count int, took time.Duration, err error)
}

// Config controls snapshot lifetime.
type Config struct {
	TTL             time.Duration
	Timeout         time.Duration // Bound on the store read
	RefreshInterval time.Duration // Start() ticker; 0 disables
}

// Cache holds the full-dataset snapshot. Readers never block on a rebuild and
// never see a partially built snapshot.
type Cache struct {
	store    store.OutletStore
	cfg      Config
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// New creates an empty cache over s.
func New(s store.OutletStore, cfg Config, obs Observer) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Cache{
		store:    s,
		cfg:      cfg,
		logger:   slog.With("component", "preload"),
		observer: obs,
		now:      time.Now,
	}
}

// TTL returns the snapshot lifetime.
func (c *Cache) TTL() time.Duration { return c.cfg.TTL }

// Rebuild loads every active outlet and replaces the snapshot. Concurrent
// calls share one store read. On failure the previous snapshot is kept.
func (c *Cache) Rebuild(ctx context.Context) (int, error) {
	ch := c.group.DoChan("rebuild", func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()
		return c.rebuild(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *Cache) rebuild(ctx context.Context) (int, error) {
	start := time.Now()

	outlets, err := c.store.AllActive(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRebuildFailed, err)
		c.observe(0, time.Since(start), err)
		c.logger.Error("Snapshot rebuild failed; keeping previous snapshot", "error", err)
		return 0, err
	}

	views := make([]model.OutletView, 0, len(outlets))
	for _, o := range outlets {
		if !o.Active {
			continue
		}
		views = append(views, model.NewOutletView(o))
	}

	c.current.Store(&Snapshot{Outlets: views, BuiltAt: c.now()})

	took := time.Since(start)
	c.observe(len(views), took, nil)
	c.logger.Info("Snapshot rebuilt", "outlets", len(views), "took", took.Round(time.Millisecond))
	return len(views), nil
}

func (c *Cache) observe(n int, took time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveRebuild(n, took, err)
	}
}

// Snapshot returns the current snapshot if it exists and has not expired.
func (c *Cache) Snapshot() (*Snapshot, bool) {
	s := c.current.Load()
	if s == nil || c.expired(s) {
		return nil, false
	}
	return s, true
}

// Stale returns the last built snapshot regardless of age.
func (c *Cache) Stale() (*Snapshot, bool) {
	s := c.current.Load()
	return s, s != nil
}

// Ensure returns a fresh snapshot, rebuilding synchronously when needed.
func (c *Cache) Ensure(ctx context.Context) (*Snapshot, error) {
	if s, ok := c.Snapshot(); ok {
		return s, nil
	}
	if _, err := c.Rebuild(ctx); err != nil {
		return nil, err
	}
	s, ok := c.Stale()
	if !ok {
		return nil, ErrRebuildFailed
	}
	return s, nil
}

// LastRefreshedAt reports when the current fresh snapshot was built.
func (c *Cache) LastRefreshedAt() (time.Time, bool) {
	s, ok := c.Snapshot()
	if !ok {
		return time.Time{}, false
	}
	return s.BuiltAt, true
}

// Invalidate drops the snapshot. The next read triggers a rebuild.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
	c.logger.Info("Snapshot invalidated")
}

func (c *Cache) expired(s *Snapshot) bool {
	return c.now().Sub(s.BuiltAt) >= c.cfg.TTL
}

// Start refreshes the snapshot every RefreshInterval until ctx is done.
// It is a no-op when the interval is zero.
func (c *Cache) Start(ctx context.Context) {
	if c.cfg.RefreshInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Rebuild(ctx); err != nil && ctx.Err() == nil {
					c.logger.Warn("Scheduled snapshot refresh failed", "error", err)
				}
			}
		}
	}()
}
