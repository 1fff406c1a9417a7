package model

import (
	"time"
)

// Chain identifiers for known retail networks. Anything unrecognised is ChainOther.
const (
	ChainBiedronka  = "biedronka"
	ChainZabka      = "zabka"
	ChainLidl       = "lidl"
	ChainKaufland   = "kaufland"
	ChainDino       = "dino"
	ChainAldi       = "aldi"
	ChainInter      = "inter"
	ChainStokrotka  = "stokrotka"
	ChainTopaz      = "topaz"
	ChainTwojMarket = "twoj_market"
	ChainCarrefour  = "carrefour"
	ChainDealz      = "dealz"
	ChainAuchan     = "auchan"
	ChainSelgros    = "selgros"
	ChainEurocash   = "eurocash"
	ChainBP         = "bp"
	ChainCircleK    = "circle_k"
	ChainArhelan    = "arhelan"
	ChainOther      = "other"
)

// Product is a catalogue item that a template can feature.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Flavor    string    `json:"flavor"`
	Brand     string    `json:"brand"`
	Category  string    `json:"category"` // energy_drink, zero_caffeine_drink, ...
	PhotoURL  string    `json:"photo_url"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary projects the product into the shape embedded in outlet results.
func (p *Product) Summary() ProductSummary {
	return ProductSummary{
		ID:       p.ID,
		Name:     p.Name,
		Flavor:   p.Flavor,
		PhotoURL: p.PhotoURL,
		Category: p.Category,
	}
}

// Template is the per-chain configuration describing generally available products.
type Template struct {
	ID       int64      `json:"id"`
	Chain    string     `json:"chain"`
	Name     string     `json:"name"`
	LogoURL  string     `json:"logo_url"`
	Products []*Product `json:"products"` // Featured, ordered by category, name, flavor
}

// Outlet is a physical store location as held by the outlet store.
type Outlet struct {
	ID         string    `json:"id"` // Stable external id (e.g. "node/123456")
	Name       string    `json:"name"`
	Chain      string    `json:"chain"`
	Lat        float64   `json:"lat"` // 6 fractional digits
	Lon        float64   `json:"lon"`
	Address    string    `json:"address"`
	Active     bool      `json:"is_active"`
	UpdatedAt  time.Time `json:"updated_at"`
	TemplateID *int64    `json:"template_id,omitempty"`

	// Joined on read; nil when the outlet has no template.
	Template *Template `json:"-"`
}

// ProductSummary is the denormalised product data carried on every outlet view.
type ProductSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Flavor   string `json:"flavor"`
	PhotoURL string `json:"photo_url"`
	Category string `json:"category"`
}

// OutletView is the enriched, immutable projection held by the preload snapshot.
type OutletView struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Chain    string           `json:"chain"`
	Address  string           `json:"address"`
	Lat      float64          `json:"lat"`
	Lon      float64          `json:"lon"`
	Products []ProductSummary `json:"products"`
	LogoURL  string           `json:"logo_url,omitempty"`
}

// NewOutletView builds the view for an outlet, flattening its template.
func NewOutletView(o *Outlet) OutletView {
	v := OutletView{
		ID:       o.ID,
		Name:     o.Name,
		Chain:    o.Chain,
		Address:  o.Address,
		Lat:      o.Lat,
		Lon:      o.Lon,
		Products: []ProductSummary{},
	}
	if o.Template != nil {
		v.LogoURL = o.Template.LogoURL
		v.Products = make([]ProductSummary, 0, len(o.Template.Products))
		for _, p := range o.Template.Products {
			v.Products = append(v.Products, p.Summary())
		}
	}
	return v
}

// Coordinate is a lat/lon pair as exchanged with the map client.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OutletHit is an outlet view annotated with distances for a single query.
type OutletHit struct {
	OutletView
	Distance         int  `json:"distance"`                     // Meters from the query center
	DistanceFromUser *int `json:"distance_from_user,omitempty"` // Meters from the user, when known
}

// Result sources.
const (
	SourceSmartCache     = "smart_cache"
	SourcePreloadedCache = "preloaded_cache"
	SourceLocalDatabase  = "local_database"
)

// QueryResult is the response to an area or range query.
type QueryResult struct {
	Shops          []OutletHit `json:"shops"`
	Center         *Coordinate `json:"center_location,omitempty"`
	UserLocation   *Coordinate `json:"user_location"`
	ZoomLevel      int         `json:"zoom_level"`
	RadiusUsed     int         `json:"radius_used"`
	TotalFound     int         `json:"total_found"`
	TotalCached    int         `json:"total_cached,omitempty"`
	FilterApplied  bool        `json:"filter_applied"`
	Cached         bool        `json:"cached"`
	Degraded       bool        `json:"degraded,omitempty"`
	Source         string      `json:"source"`
	CacheTTL       int         `json:"cache_time,omitempty"` // Seconds
	LastUpdate     int64       `json:"last_update,omitempty"`
	GeneratedAtUTC time.Time   `json:"generated_at"`
}

// Clone returns a copy that shares no slices or pointers with r.
func (r *QueryResult) Clone() *QueryResult {
	out := *r
	if r.Shops != nil {
		out.Shops = make([]OutletHit, len(r.Shops))
		for i, h := range r.Shops {
			if h.Products != nil {
				h.Products = append(make([]ProductSummary, 0, len(h.Products)), h.Products...)
			}
			if h.DistanceFromUser != nil {
				d := *h.DistanceFromUser
				h.DistanceFromUser = &d
			}
			out.Shops[i] = h
		}
	}
	if r.Center != nil {
		c := *r.Center
		out.Center = &c
	}
	if r.UserLocation != nil {
		u := *r.UserLocation
		out.UserLocation = &u
	}
	return &out
}
