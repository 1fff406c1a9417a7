package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shopfinder/pkg/db"
	"shopfinder/pkg/geo"
	"shopfinder/pkg/model"
)

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	OutletStore
	OutletWriter
	CatalogStore
	CacheStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Outlets ---

const outletColumns = `o.id, o.name, o.chain, o.lat, o.lon, o.address, o.is_active, o.template_id, o.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutlet(sc rowScanner) (*model.Outlet, error) {
	var o model.Outlet
	var templateID sql.NullInt64
	var updatedAt sql.NullTime
	if err := sc.Scan(&o.ID, &o.Name, &o.Chain, &o.Lat, &o.Lon, &o.Address, &o.Active, &templateID, &updatedAt); err != nil {
		return nil, err
	}
	if templateID.Valid {
		id := templateID.Int64
		o.TemplateID = &id
	}
	if updatedAt.Valid {
		o.UpdatedAt = updatedAt.Time
	}
	return &o, nil
}

func (s *SQLiteStore) queryOutlets(ctx context.Context, query string, args ...any) ([]*model.Outlet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Outlet
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachTemplates(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RangeQuery returns outlets inside the filter's box, ordered by id.
func (s *SQLiteStore) RangeQuery(ctx context.Context, f RangeFilter) ([]*model.Outlet, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + outletColumns + ` FROM outlets o
		WHERE o.lat BETWEEN ? AND ? AND o.lon BETWEEN ? AND ?`)
	args := []any{f.Bounds.Bottom(), f.Bounds.Top(), f.Bounds.Left(), f.Bounds.Right()}

	if f.ActiveOnly {
		q.WriteString(` AND o.is_active = 1`)
	}
	if f.Flavor != "" {
		// LIKE is case-insensitive for ASCII
		q.WriteString(` AND EXISTS (
			SELECT 1 FROM template_products tp
			JOIN products p ON p.id = tp.product_id
			WHERE tp.template_id = o.template_id AND p.is_active = 1 AND p.flavor LIKE ? ESCAPE '\')`)
		args = append(args, "%"+escapeLike(f.Flavor)+"%")
	}
	q.WriteString(` ORDER BY o.id`)
	if f.Limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	out, err := s.queryOutlets(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	return out, nil
}

// AllActive returns every active outlet.
func (s *SQLiteStore) AllActive(ctx context.Context) ([]*model.Outlet, error) {
	out, err := s.queryOutlets(ctx, `SELECT `+outletColumns+` FROM outlets o WHERE o.is_active = 1 ORDER BY o.id`)
	if err != nil {
		return nil, fmt.Errorf("load active outlets: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetOutlet(ctx context.Context, id string) (*model.Outlet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outletColumns+` FROM outlets o WHERE o.id = ?`, id)
	o, err := scanOutlet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachTemplates(ctx, []*model.Outlet{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// SaveOutlet inserts or updates an outlet by id. Coordinates are kept to 6 decimals.
func (s *SQLiteStore) SaveOutlet(ctx context.Context, o *model.Outlet) error {
	if !geo.ValidLat(o.Lat) || !geo.ValidLon(o.Lon) {
		return fmt.Errorf("outlet %s: coordinates out of range (%v, %v)", o.ID, o.Lat, o.Lon)
	}
	if o.Chain == "" {
		o.Chain = model.ChainOther
	}
	o.Lat = geo.Round(o.Lat, 6)
	o.Lon = geo.Round(o.Lon, 6)
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}

	var templateID sql.NullInt64
	if o.TemplateID != nil {
		templateID = sql.NullInt64{Int64: *o.TemplateID, Valid: true}
	}

	query := `INSERT INTO outlets (id, name, chain, lat, lon, address, is_active, template_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			chain = excluded.chain,
			lat = excluded.lat,
			lon = excluded.lon,
			address = excluded.address,
			is_active = excluded.is_active,
			template_id = excluded.template_id,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, o.ID, o.Name, o.Chain, o.Lat, o.Lon, o.Address, o.Active, templateID, o.UpdatedAt)
	return err
}

// SetOutletActive flips the soft-delete flag.
func (s *SQLiteStore) SetOutletActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE outlets SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// attachTemplates joins templates and their active products onto outlets.
// Outlets sharing a template share the same *model.Template.
func (s *SQLiteStore) attachTemplates(ctx context.Context, outlets []*model.Outlet) error {
	seen := make(map[int64]bool)
	var ids []int64
	for _, o := range outlets {
		if o.TemplateID != nil && !seen[*o.TemplateID] {
			seen[*o.TemplateID] = true
			ids = append(ids, *o.TemplateID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	templates, err := s.loadTemplates(ctx, ids)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	for _, o := range outlets {
		if o.TemplateID != nil {
			o.Template = templates[*o.TemplateID]
		}
	}
	return nil
}

func (s *SQLiteStore) loadTemplates(ctx context.Context, ids []int64) (map[int64]*model.Template, error) {
	placeholders, args := inClause(ids)

	rows, err := s.db.QueryContext(ctx, `SELECT id, chain, name, logo_url FROM templates WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	templates := make(map[int64]*model.Template, len(ids))
	for rows.Next() {
		t := &model.Template{}
		if err := rows.Scan(&t.ID, &t.Chain, &t.Name, &t.LogoURL); err != nil {
			rows.Close()
			return nil, err
		}
		t.Products = []*model.Product{}
		templates[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT tp.template_id, `+productColumns+`
		FROM template_products tp
		JOIN products p ON p.id = tp.product_id
		WHERE tp.template_id IN (`+placeholders+`) AND p.is_active = 1
		ORDER BY p.category, p.name, p.flavor`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var templateID int64
		p, err := scanProduct(rows, &templateID)
		if err != nil {
			return nil, err
		}
		if t, ok := templates[templateID]; ok {
			t.Products = append(t.Products, p)
		}
	}
	return templates, rows.Err()
}

// --- Catalog ---

const productColumns = `p.id, p.name, p.flavor, p.brand, p.category, p.photo_url, p.is_active, p.created_at`

func scanProduct(sc rowScanner, prefix ...any) (*model.Product, error) {
	var p model.Product
	var createdAt sql.NullTime
	dest := append(prefix, &p.ID, &p.Name, &p.Flavor, &p.Brand, &p.Category, &p.PhotoURL, &p.Active, &createdAt)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	return &p, nil
}

// SaveProduct upserts by (name, flavor) and sets p.ID.
func (s *SQLiteStore) SaveProduct(ctx context.Context, p *model.Product) error {
	if p.Category == "" {
		p.Category = "energy_drink"
	}
	query := `INSERT INTO products (name, flavor, brand, category, photo_url, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, flavor) DO UPDATE SET
			brand = excluded.brand,
			category = excluded.category,
			photo_url = excluded.photo_url,
			is_active = excluded.is_active
		RETURNING id`
	return s.db.QueryRowContext(ctx, query, p.Name, p.Flavor, p.Brand, p.Category, p.PhotoURL, p.Active).Scan(&p.ID)
}

// SaveTemplate upserts by chain and sets t.ID. Products are linked separately.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *model.Template) error {
	query := `INSERT INTO templates (chain, name, logo_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chain) DO UPDATE SET
			name = excluded.name,
			logo_url = excluded.logo_url,
			updated_at = excluded.updated_at
		RETURNING id`
	return s.db.QueryRowContext(ctx, query, t.Chain, t.Name, t.LogoURL, time.Now().UTC()).Scan(&t.ID)
}

func (s *SQLiteStore) LinkProduct(ctx context.Context, templateID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO template_products (template_id, product_id) VALUES (?, ?)`, templateID, productID)
	return err
}

func (s *SQLiteStore) TemplateByChain(ctx context.Context, chain string) (*model.Template, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM templates WHERE chain = ?`, chain).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	templates, err := s.loadTemplates(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return templates[id], nil
}

func (s *SQLiteStore) CountActiveOutlets(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM outlets WHERE is_active = 1`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountActiveProducts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE is_active = 1`).Scan(&n)
	return n, err
}

// SearchProducts matches active products whose name or flavor contains q.
func (s *SQLiteStore) SearchProducts(ctx context.Context, q string, limit int) ([]*model.Product, error) {
	pattern := "%" + escapeLike(q) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products p
		WHERE p.is_active = 1 AND (p.name LIKE ? ESCAPE '\' OR p.flavor LIKE ? ESCAPE '\')
		ORDER BY p.name, p.flavor
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Cache ---

// GetCache returns a live or expired entry; callers decide what expiry means.
func (s *SQLiteStore) GetCache(ctx context.Context, key string) (val []byte, expiresAt time.Time, found bool, err error) {
	var expiresMillis int64
	err = s.db.QueryRowContext(ctx, "SELECT value, expires_at FROM cache WHERE key = ?", key).Scan(&val, &expiresMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	// Transparent decompression
	if isGzip(val) {
		if val, err = decompress(val); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("decompress cache entry %s: %w", key, err)
		}
	}
	return val, time.UnixMilli(expiresMillis), true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte, expiresAt time.Time) error {
	if compressed, err := compress(val); err == nil {
		val = compressed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		key, val, time.Now().UTC(), expiresAt.UnixMilli())
	return err
}

func (s *SQLiteStore) DeleteCache(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	return err
}

// ClearCache deletes every entry whose key starts with prefix and returns the count.
func (s *SQLiteStore) ClearCache(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountCache counts entries under prefix that are still live at liveAt.
func (s *SQLiteStore) CountCache(ctx context.Context, prefix string, liveAt time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM cache WHERE key LIKE ? ESCAPE '\' AND expires_at > ?`,
		escapeLike(prefix)+"%", liveAt.UnixMilli()).Scan(&n)
	return n, err
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- helpers ---

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
