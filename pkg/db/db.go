package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// WAL for concurrent readers, busy timeout for the occasional import/prune overlap
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Single connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// PruneCache removes query cache rows that expired more than grace ago.
// It returns the number of rows removed.
func (d *DB) PruneCache(ctx context.Context, grace time.Duration) (int64, error) {
	deadline := time.Now().Add(-grace).UnixMilli()
	res, err := d.ExecContext(ctx, "DELETE FROM cache WHERE expires_at < ?", deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			flavor TEXT NOT NULL DEFAULT '',
			brand TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'energy_drink',
			photo_url TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(name, flavor)
		);`,
		`CREATE TABLE IF NOT EXISTS templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chain TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			logo_url TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS template_products (
			template_id INTEGER NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (template_id, product_id)
		);`,
		`CREATE TABLE IF NOT EXISTS outlets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			chain TEXT NOT NULL DEFAULT 'other',
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			template_id INTEGER REFERENCES templates(id) ON DELETE SET NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outlets_lat_lon ON outlets(lat, lon);`,
		`CREATE INDEX IF NOT EXISTS idx_outlets_chain ON outlets(chain);`,
		`CREATE INDEX IF NOT EXISTS idx_outlets_active ON outlets(is_active);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at INTEGER NOT NULL DEFAULT 0
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Databases created before expiry tracking lack expires_at
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('cache') WHERE name='expires_at'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE cache ADD COLUMN expires_at INTEGER NOT NULL DEFAULT 0"); err != nil {
			return fmt.Errorf("failed to add expires_at column: %w", err)
		}
	}

	return nil
}
