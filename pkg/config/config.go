package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied on top of the YAML file.
const (
	EnvDBPath     = "SHOPFINDER_DB_PATH"
	EnvAdminToken = "SHOPFINDER_ADMIN_TOKEN"
	EnvAddr       = "SHOPFINDER_ADDR"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Preload    PreloadConfig    `yaml:"preload"`
	QueryCache QueryCacheConfig `yaml:"query_cache"`
	Finder     FinderConfig     `yaml:"finder"`
	Admin      AdminConfig      `yaml:"admin"`
	Import     ImportConfig     `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	MaxConnections int      `yaml:"max_connections"` // 0 = unlimited
	WriteTimeout   Duration `yaml:"write_timeout"`   // Must exceed preload.timeout so cold rebuilds can answer
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// PreloadConfig controls the full-dataset snapshot.
type PreloadConfig struct {
	TTL             Duration `yaml:"ttl"`
	Timeout         Duration `yaml:"timeout"`          // Store read bound for one rebuild
	RefreshInterval Duration `yaml:"refresh_interval"` // 0 disables background refresh
}

// QueryCacheConfig controls the per-query result cache.
type QueryCacheConfig struct {
	Backend    string   `yaml:"backend"`     // "memory", "sqlite"
	MaxEntries int      `yaml:"max_entries"` // Per TTL tier, 0 = unbounded (memory only)
	TTLClose   Duration `yaml:"ttl_close"`   // zoom >= 15
	TTLMid     Duration `yaml:"ttl_mid"`     // zoom >= 12
	TTLWide    Duration `yaml:"ttl_wide"`
	PruneAfter Duration `yaml:"prune_after"` // Startup removal of expired sqlite rows older than this
}

// FinderConfig holds query service limits.
type FinderConfig struct {
	StoreTimeout  Duration `yaml:"store_timeout"`
	FetchCeiling  int      `yaml:"fetch_ceiling"`
	DefaultRadius Distance `yaml:"default_radius"` // Range queries without a radius
	DefaultZoom   int      `yaml:"default_zoom"`
	MinRadius     Distance `yaml:"min_radius"`
	MaxRadius     Distance `yaml:"max_radius"`
}

// AdminConfig gates maintenance endpoints.
type AdminConfig struct {
	Token string `yaml:"token"` // Empty disables admin endpoints
}

// ImportConfig points at the outlet dataset loaded at startup.
type ImportConfig struct {
	GeoJSONPath string `yaml:"geojson_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "localhost:8080",
			MaxConnections: 512,
			WriteTimeout:   Duration(45 * time.Second),
		},
		DB: DBConfig{
			Path: "./data/shopfinder.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Preload: PreloadConfig{
			TTL:             Duration(6 * time.Hour),
			Timeout:         Duration(30 * time.Second),
			RefreshInterval: 0,
		},
		QueryCache: QueryCacheConfig{
			Backend:    "memory",
			MaxEntries: 0,
			TTLClose:   Duration(5 * time.Minute),
			TTLMid:     Duration(15 * time.Minute),
			TTLWide:    Duration(30 * time.Minute),
			PruneAfter: Duration(Day),
		},
		Finder: FinderConfig{
			StoreTimeout:  Duration(5 * time.Second),
			FetchCeiling:  2500,
			DefaultRadius: Distance(2000),
			DefaultZoom:   13,
			MinRadius:     Distance(100),
			MaxRadius:     Distance(10_000_000),
		},
		Import: ImportConfig{
			GeoJSONPath: "./data/shops.geojson",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Environment overrides are applied afterwards and never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		cfg.Admin.Token = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Address = v
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.QueryCache.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid query_cache.backend %q: must be memory or sqlite", c.QueryCache.Backend)
	}
	if c.Finder.MinRadius <= 0 || c.Finder.MaxRadius < c.Finder.MinRadius {
		return fmt.Errorf("invalid finder radius band [%v, %v]", c.Finder.MinRadius.Meters(), c.Finder.MaxRadius.Meters())
	}
	if c.Finder.FetchCeiling <= 0 {
		return fmt.Errorf("finder.fetch_ceiling must be positive, got %d", c.Finder.FetchCeiling)
	}
	if c.Preload.TTL.D() <= 0 {
		return fmt.Errorf("preload.ttl must be positive")
	}
	if c.Server.WriteTimeout.D() <= c.Preload.Timeout.D() {
		return fmt.Errorf("server.write_timeout (%v) must exceed preload.timeout (%v)", c.Server.WriteTimeout.D(), c.Preload.Timeout.D())
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# shopfinder configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	reBackend := regexp.MustCompile(`(?m)^(\s+)backend:`)
	data = reBackend.ReplaceAll(data, []byte("${1}# Options: memory, sqlite\n${1}backend:"))

	reToken := regexp.MustCompile(`(?m)^(\s+)token:`)
	data = reToken.ReplaceAll(data, []byte("${1}# Bearer token for /api/force-preload/ and /api/cache-management/ (or "+EnvAdminToken+")\n${1}token:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
