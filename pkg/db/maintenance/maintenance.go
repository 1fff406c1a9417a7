package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"shopfinder/pkg/db"
	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

const outletImportStateKey = "outlets_geojson_mtime"

// DefaultPruneAfter is how long expired query cache rows are kept.
const DefaultPruneAfter = 24 * time.Hour

// Options controls a maintenance run.
type Options struct {
	GeoJSONPath string
	PruneAfter  time.Duration
	Force       bool // Import even when the file is unchanged
}

// Report summarises a maintenance run.
type Report struct {
	Imported int
	Updated  int
	Skipped  int
	Pruned   int64
	Fresh    bool // Import skipped because the file was unchanged
}

// Run imports outlets from GeoJSON and prunes the query cache. Failures are
// logged and do not stop startup.
func Run(ctx context.Context, s store.Store, d *db.DB, opts Options) Report {
	slog.Info("Starting database maintenance")

	rep, err := ImportOutlets(ctx, s, opts.GeoJSONPath, opts.Force)
	if err != nil {
		slog.Error("Outlet import failed", "path", opts.GeoJSONPath, "error", err)
	} else if !rep.Fresh {
		slog.Info("Outlet import completed", "imported", rep.Imported, "updated", rep.Updated, "skipped", rep.Skipped)
	}

	grace := opts.PruneAfter
	if grace <= 0 {
		grace = DefaultPruneAfter
	}
	n, err := d.PruneCache(ctx, grace)
	if err != nil {
		slog.Error("Cache pruning failed", "error", err)
	} else {
		rep.Pruned = n
		slog.Info("Cache pruning completed", "removed", n)
	}

	return rep
}

// ImportOutlets upserts every named Point feature of a GeoJSON file as an
// active outlet, keyed by its "@id" property. Unchanged files are skipped
// unless force is set. A missing file is not an error.
func ImportOutlets(ctx context.Context, s store.Store, path string, force bool) (Report, error) {
	var rep Report

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		rep.Fresh = true
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("failed to stat geojson: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339)
	if stored, found := s.GetState(ctx, outletImportStateKey); found && stored == fileMTime && !force {
		rep.Fresh = true
		return rep, nil
	}

	slog.Info("Importing outlets from GeoJSON", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("failed to read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return rep, fmt.Errorf("failed to parse geojson: %w", err)
	}

	templates := make(map[string]*int64)
	for i, f := range fc.Features {
		o, ok := featureOutlet(f, i)
		if !ok {
			rep.Skipped++
			continue
		}

		tid, seen := templates[o.Chain]
		if !seen {
			tid, err = templateID(ctx, s, o.Chain)
			if err != nil {
				return rep, err
			}
			templates[o.Chain] = tid
		}
		o.TemplateID = tid

		_, err := s.GetOutlet(ctx, o.ID)
		existed := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return rep, fmt.Errorf("failed to look up outlet %s: %w", o.ID, err)
		}

		if err := s.SaveOutlet(ctx, o); err != nil {
			slog.Warn("Skipping outlet", "id", o.ID, "error", err)
			rep.Skipped++
			continue
		}
		if existed {
			rep.Updated++
		} else {
			rep.Imported++
		}
	}

	if err := s.SetState(ctx, outletImportStateKey, fileMTime); err != nil {
		return rep, fmt.Errorf("failed to update state: %w", err)
	}
	return rep, nil
}

func templateID(ctx context.Context, s store.CatalogStore, chain string) (*int64, error) {
	t, err := s.TemplateByChain(ctx, chain)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template for %s: %w", chain, err)
	}
	return &t.ID, nil
}

// featureOutlet converts a feature into an outlet. Features without a name
// or with a non-Point geometry are rejected.
func featureOutlet(f *geojson.Feature, idx int) (*model.Outlet, bool) {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return nil, false
	}
	name := strings.TrimSpace(prop(f.Properties, "name"))
	if name == "" {
		return nil, false
	}
	id := prop(f.Properties, "@id")
	if id == "" {
		id = fmt.Sprintf("unknown_%d", idx)
	}

	return &model.Outlet{
		ID:      id,
		Name:    name,
		Chain:   DetectChain(name),
		Lat:     pt.Lat(),
		Lon:     pt.Lon(),
		Address: BuildAddress(f.Properties),
		Active:  true,
	}, true
}

func prop(p geojson.Properties, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// chainKeywords is checked in order; the first matching chain wins.
var chainKeywords = []struct {
	chain    string
	keywords []string
}{
	{model.ChainZabka, []string{"żabka", "zabka"}},
	{model.ChainBiedronka, []string{"biedronka"}},
	{model.ChainLidl, []string{"lidl"}},
	{model.ChainDino, []string{"dino"}},
	{model.ChainKaufland, []string{"kaufland"}},
	{model.ChainAldi, []string{"aldi"}},
	{model.ChainInter, []string{"intermarché", "intermarche"}},
	{model.ChainStokrotka, []string{"stokrotka"}},
	{model.ChainTopaz, []string{"topaz"}},
	{model.ChainDealz, []string{"dealz"}},
	{model.ChainCarrefour, []string{"carrefour"}},
	{model.ChainTwojMarket, []string{"twój market", "twoj market"}},
	{model.ChainAuchan, []string{"auchan"}},
	{model.ChainCircleK, []string{"circle k"}},
}

// DetectChain maps a shop name to a chain id by keyword.
func DetectChain(name string) string {
	lower := strings.ToLower(name)
	for _, c := range chainKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.chain
			}
		}
	}
	return model.ChainOther
}

// NoAddress is stored when a feature carries no usable addr:* tags.
const NoAddress = "Brak adresu"

// BuildAddress joins addr:place or addr:street (with house number) and addr:city.
func BuildAddress(p geojson.Properties) string {
	street := prop(p, "addr:street")
	house := prop(p, "addr:housenumber")
	place := prop(p, "addr:place")
	city := prop(p, "addr:city")

	var parts []string
	switch {
	case place != "" && house != "":
		parts = append(parts, place+" "+house)
	case street != "" && house != "":
		parts = append(parts, street+" "+house)
	case place != "":
		parts = append(parts, place)
	case street != "":
		parts = append(parts, street)
	}
	if city != "" {
		parts = append(parts, city)
	}

	if len(parts) == 0 {
		return NoAddress
	}
	return strings.Join(parts, ", ")
}
