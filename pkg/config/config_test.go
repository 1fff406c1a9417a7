package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		content       string // empty = no file
		env           map[string]string
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T, string)
		expectedError bool
	}{
		{
			name: "NewFile_Defaults",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Preload.TTL.D() != 6*time.Hour {
					t.Errorf("expected preload ttl 6h, got %v", cfg.Preload.TTL.D())
				}
				if cfg.Finder.FetchCeiling != 2500 {
					t.Errorf("expected fetch ceiling 2500, got %d", cfg.Finder.FetchCeiling)
				}
				if cfg.QueryCache.Backend != "memory" {
					t.Errorf("expected memory backend, got %q", cfg.QueryCache.Backend)
				}
				if cfg.Server.WriteTimeout.D() <= cfg.Preload.Timeout.D() {
					t.Errorf("write timeout %v must exceed preload timeout %v", cfg.Server.WriteTimeout.D(), cfg.Preload.Timeout.D())
				}
			},
			checkFile: func(t *testing.T, path string) {
				content, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "backend: memory") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: memory, sqlite") {
					t.Error("config file missing backend options comment")
				}
			},
		},
		{
			name:    "ExistingFile_Override",
			content: "query_cache:\n  backend: sqlite\n  ttl_close: 1m\nfinder:\n  default_radius: 3km\n",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.QueryCache.Backend != "sqlite" {
					t.Errorf("expected sqlite backend, got %q", cfg.QueryCache.Backend)
				}
				if cfg.QueryCache.TTLClose.D() != time.Minute {
					t.Errorf("expected ttl_close 1m, got %v", cfg.QueryCache.TTLClose.D())
				}
				if cfg.QueryCache.TTLWide.D() != 30*time.Minute {
					t.Errorf("expected untouched ttl_wide default, got %v", cfg.QueryCache.TTLWide.D())
				}
				if cfg.Finder.DefaultRadius.Meters() != 3000 {
					t.Errorf("expected default radius 3000, got %v", cfg.Finder.DefaultRadius)
				}
			},
			checkFile: func(t *testing.T, path string) {
				content, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "fetch_ceiling") {
					t.Error("existing config file must not be rewritten")
				}
			},
		},
		{
			name:    "EnvOverrides",
			content: "admin:\n  token: from-file\n",
			env: map[string]string{
				EnvAdminToken: "from-env",
				EnvDBPath:     "/tmp/other.db",
				EnvAddr:       ":9999",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Admin.Token != "from-env" {
					t.Errorf("expected env token, got %q", cfg.Admin.Token)
				}
				if cfg.DB.Path != "/tmp/other.db" {
					t.Errorf("expected env db path, got %q", cfg.DB.Path)
				}
				if cfg.Server.Address != ":9999" {
					t.Errorf("expected env address, got %q", cfg.Server.Address)
				}
			},
		},
		{
			name:          "InvalidBackend",
			content:       "query_cache:\n  backend: redis\n",
			expectedError: true,
		},
		{
			name:          "InvalidRadiusBand",
			content:       "finder:\n  min_radius: 5km\n  max_radius: 1km\n",
			expectedError: true,
		},
		{
			name:          "WriteTimeoutBelowRebuild",
			content:       "server:\n  write_timeout: 15s\npreload:\n  timeout: 30s\n",
			expectedError: true,
		},
		{
			name:          "MalformedYAML",
			content:       "server: [oops",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{EnvAdminToken, EnvDBPath, EnvAddr} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "shopfinder.yaml")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			}

			cfg, err := Load(path)
			if tt.expectedError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t, path)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Server.Address = ":7070"
	cfg.Preload.RefreshInterval = Duration(2 * time.Hour)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Setenv(EnvAddr, "")
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Address != ":7070" {
		t.Errorf("expected :7070, got %q", loaded.Server.Address)
	}
	if loaded.Preload.RefreshInterval.D() != 2*time.Hour {
		t.Errorf("expected 2h refresh, got %v", loaded.Preload.RefreshInterval.D())
	}
	if loaded.Finder.MaxRadius.Meters() != 10_000_000 {
		t.Errorf("expected max radius to survive round trip, got %v", loaded.Finder.MaxRadius)
	}
}
