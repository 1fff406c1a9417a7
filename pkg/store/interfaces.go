package store

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"

	"shopfinder/pkg/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// RangeFilter selects outlets for a range query.
type RangeFilter struct {
	Bounds     orb.Bound // Inclusive lat/lon box
	ActiveOnly bool
	Flavor     string // Case-insensitive substring over template product flavors; empty = no filter
	Limit      int    // 0 = no limit
}

// OutletStore is the read side the query engine depends on.
// Returned outlets carry their template with active products joined.
type OutletStore interface {
	RangeQuery(ctx context.Context, f RangeFilter) ([]*model.Outlet, error)
	AllActive(ctx context.Context) ([]*model.Outlet, error)
}

// OutletWriter handles outlet persistence for imports.
type OutletWriter interface {
	GetOutlet(ctx context.Context, id string) (*model.Outlet, error)
	SaveOutlet(ctx context.Context, o *model.Outlet) error
	SetOutletActive(ctx context.Context, id string, active bool) error
}

// CatalogStore handles products and chain templates.
type CatalogStore interface {
	SaveProduct(ctx context.Context, p *model.Product) error
	SaveTemplate(ctx context.Context, t *model.Template) error
	LinkProduct(ctx context.Context, templateID, productID int64) error
	TemplateByChain(ctx context.Context, chain string) (*model.Template, error)
	CountActiveOutlets(ctx context.Context) (int, error)
	CountActiveProducts(ctx context.Context) (int, error)
	SearchProducts(ctx context.Context, q string, limit int) ([]*model.Product, error)
}

// CacheStore handles expiring key-value blobs.
type CacheStore interface {
	GetCache(ctx context.Context, key string) (val []byte, expiresAt time.Time, found bool, err error)
	SetCache(ctx context.Context, key string, val []byte, expiresAt time.Time) error
	DeleteCache(ctx context.Context, key string) error
	ClearCache(ctx context.Context, prefix string) (int, error)
	CountCache(ctx context.Context, prefix string, liveAt time.Time) (int, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
