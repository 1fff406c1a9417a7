package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopfinder/pkg/db"
	"shopfinder/pkg/model"
	"shopfinder/pkg/store"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [21.0125, 52.2300]},
     "properties": {"@id": "node/1", "name": "Żabka", "addr:street": "Marszałkowska", "addr:housenumber": "10", "addr:city": "Warszawa"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [19.9366, 50.0614]},
     "properties": {"@id": "node/2", "name": "Biedronka Rynek"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [18.6466, 54.3520]},
     "properties": {"@id": "node/3"}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[21.0, 52.0], [21.1, 52.1]]},
     "properties": {"@id": "way/4", "name": "Lidl"}}
  ]
}`

func setup(t *testing.T) (*db.DB, *store.SQLiteStore) {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, store.NewSQLiteStore(d)
}

func TestImportOutlets(t *testing.T) {
	_, s := setup(t)
	ctx := context.Background()

	tmpl := &model.Template{Chain: model.ChainZabka, Name: "Żabka"}
	require.NoError(t, s.SaveTemplate(ctx, tmpl))

	path := filepath.Join(t.TempDir(), "shops.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleGeoJSON), 0o644))

	rep, err := ImportOutlets(ctx, s, path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, 2, rep.Skipped, "unnamed and non-point features")
	assert.False(t, rep.Fresh)

	o, err := s.GetOutlet(ctx, "node/1")
	require.NoError(t, err)
	assert.Equal(t, model.ChainZabka, o.Chain)
	assert.Equal(t, "Marszałkowska 10, Warszawa", o.Address)
	assert.InDelta(t, 52.23, o.Lat, 1e-9)
	assert.InDelta(t, 21.0125, o.Lon, 1e-9)
	require.NotNil(t, o.TemplateID)
	assert.Equal(t, tmpl.ID, *o.TemplateID)
	assert.True(t, o.Active)

	o, err = s.GetOutlet(ctx, "node/2")
	require.NoError(t, err)
	assert.Equal(t, model.ChainBiedronka, o.Chain)
	assert.Equal(t, NoAddress, o.Address)
	assert.Nil(t, o.TemplateID)

	// Unchanged file is skipped
	rep, err = ImportOutlets(ctx, s, path, false)
	require.NoError(t, err)
	assert.True(t, rep.Fresh)

	// Forced re-import updates in place
	rep, err = ImportOutlets(ctx, s, path, true)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Imported)
	assert.Equal(t, 2, rep.Updated)
}

func TestImportOutlets_MissingFile(t *testing.T) {
	_, s := setup(t)
	rep, err := ImportOutlets(context.Background(), s, filepath.Join(t.TempDir(), "nope.geojson"), false)
	require.NoError(t, err)
	assert.True(t, rep.Fresh)
}

func TestImportOutlets_Malformed(t *testing.T) {
	_, s := setup(t)
	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := ImportOutlets(context.Background(), s, path, false)
	assert.Error(t, err)
}

func TestRun_PrunesCache(t *testing.T) {
	d, s := setup(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.SetCache(ctx, "local_shops_old", []byte("x"), now.Add(-48*time.Hour)))
	require.NoError(t, s.SetCache(ctx, "local_shops_new", []byte("y"), now.Add(time.Hour)))

	rep := Run(ctx, s, d, Options{GeoJSONPath: filepath.Join(t.TempDir(), "none.geojson"), PruneAfter: 24 * time.Hour})
	assert.Equal(t, int64(1), rep.Pruned)

	_, _, found, err := s.GetCache(ctx, "local_shops_new")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDetectChain(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Żabka", model.ChainZabka},
		{"ZABKA Z1234", model.ChainZabka},
		{"Biedronka", model.ChainBiedronka},
		{"Intermarché Super", model.ChainInter},
		{"Twój Market", model.ChainTwojMarket},
		{"Carrefour Express", model.ChainCarrefour},
		{"Sklep u Pana Józka", model.ChainOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectChain(tt.name))
		})
	}
}

func TestBuildAddress(t *testing.T) {
	tests := []struct {
		name  string
		props geojson.Properties
		want  string
	}{
		{"PlaceWithNumber", geojson.Properties{"addr:place": "Zawady", "addr:housenumber": "5", "addr:street": "Główna"}, "Zawady 5"},
		{"StreetWithNumberAndCity", geojson.Properties{"addr:street": "Długa", "addr:housenumber": "1", "addr:city": "Gdańsk"}, "Długa 1, Gdańsk"},
		{"StreetOnly", geojson.Properties{"addr:street": "Długa"}, "Długa"},
		{"CityOnly", geojson.Properties{"addr:city": "Kraków"}, "Kraków"},
		{"Empty", geojson.Properties{}, NoAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildAddress(tt.props))
		})
	}
}
