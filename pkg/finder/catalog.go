package finder

import (
	"context"
	"strings"
	"unicode/utf8"

	"shopfinder/pkg/model"
)

// PlatformStats summarises catalogue size.
type PlatformStats struct {
	ActiveOutlets int   `json:"shops"`
	Products      int   `json:"products"`
	LastUpdated   int64 `json:"last_updated"` // Unix seconds
}

// PlatformStats returns catalogue counts, reusing the last answer for StatsTTL.
// Concurrent refreshes share one store read; each caller waits at most until
// its own context is done.
func (s *Service) PlatformStats(ctx context.Context) (PlatformStats, error) {
	if st, ok := s.cachedStats(); ok {
		return st, nil
	}

	ch := s.statsGroup.DoChan("stats", func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others
		rctx, cancel := s.bounded(context.WithoutCancel(ctx))
		defer cancel()
		return s.loadStats(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return PlatformStats{}, res.Err
		}
		return res.Val.(PlatformStats), nil
	case <-ctx.Done():
		return PlatformStats{}, unavailable("platform stats", ctx.Err())
	}
}

func (s *Service) cachedStats() (PlatformStats, bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsCached != nil && s.now().Sub(s.statsAt) < s.cfg.StatsTTL {
		return *s.statsCached, true
	}
	return PlatformStats{}, false
}

func (s *Service) loadStats(ctx context.Context) (PlatformStats, error) {
	outlets, err := s.catalog.CountActiveOutlets(ctx)
	if err != nil {
		return PlatformStats{}, unavailable("count outlets", err)
	}
	products, err := s.catalog.CountActiveProducts(ctx)
	if err != nil {
		return PlatformStats{}, unavailable("count products", err)
	}

	now := s.now()
	st := PlatformStats{ActiveOutlets: outlets, Products: products, LastUpdated: now.Unix()}

	s.statsMu.Lock()
	s.statsCached = &st
	s.statsAt = now
	s.statsMu.Unlock()
	return st, nil
}

// SearchProducts matches active products by name or flavor. Queries shorter
// than two characters return nothing.
func (s *Service) SearchProducts(ctx context.Context, q string) ([]model.ProductSummary, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < minSearchQueryLength {
		return []model.ProductSummary{}, nil
	}

	sctx, cancel := s.bounded(ctx)
	defer cancel()
	products, err := s.catalog.SearchProducts(sctx, q, searchResultLimit)
	if err != nil {
		return nil, unavailable("search products", err)
	}

	out := make([]model.ProductSummary, len(products))
	for i, p := range products {
		out[i] = p.Summary()
	}
	return out, nil
}
