package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"

	"shopfinder/internal/api"
	"shopfinder/pkg/cache"
	"shopfinder/pkg/config"
	"shopfinder/pkg/db"
	"shopfinder/pkg/db/maintenance"
	"shopfinder/pkg/finder"
	"shopfinder/pkg/logging"
	"shopfinder/pkg/metrics"
	"shopfinder/pkg/preload"
	"shopfinder/pkg/probe"
	"shopfinder/pkg/store"
	"shopfinder/pkg/tracker"
	"shopfinder/pkg/version"
)

var (
	configPath = flag.String("config", "configs/shopfinder.yaml", "Path to the config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	reimport   = flag.Bool("reimport", false, "Import the GeoJSON outlet file even if unchanged")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.Save(*configPath, config.DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load(".env")

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Shopfinder started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	maintenance.Run(ctx, st, dbConn, maintenance.Options{
		GeoJSONPath: appCfg.Import.GeoJSONPath,
		PruneAfter:  appCfg.QueryCache.PruneAfter.D(),
		Force:       *reimport,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	qc, err := newQueryCache(appCfg, st)
	if err != nil {
		return err
	}

	pre := preload.New(st, preload.Config{
		TTL:             appCfg.Preload.TTL.D(),
		Timeout:         appCfg.Preload.Timeout.D(),
		RefreshInterval: appCfg.Preload.RefreshInterval.D(),
	}, m)

	svc := finder.NewService(finder.Deps{
		Store:   st,
		Catalog: st,
		Preload: pre,
		Cache:   qc,
		Metrics: m,
		Tracker: tracker.New(),
	}, finderConfig(appCfg))

	probes := []probe.Probe{
		{Name: "database", Check: dbConn.PingContext, Critical: true},
		{Name: "outlet store", Check: func(ctx context.Context) error {
			_, err := st.CountActiveOutlets(ctx)
			return err
		}, Critical: true},
		{Name: "query cache", Check: func(ctx context.Context) error {
			_, err := qc.Info(ctx)
			return err
		}, Critical: true},
		{Name: "outlet geojson", Check: probe.FileExists(appCfg.Import.GeoJSONPath)},
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Warm the snapshot; a failure here is retried by the first area query
	if n, err := pre.Rebuild(ctx); err != nil {
		slog.Warn("Initial snapshot build failed", "error", err)
	} else {
		slog.Info("Initial snapshot built", "outlets", n)
	}
	pre.Start(ctx)

	srv := api.NewServer(appCfg.Server.Address, appCfg.Server.WriteTimeout.D(), api.Handlers{
		Outlets: api.NewOutletHandler(svc, appCfg.Finder.DefaultZoom),
		Admin:   api.NewAdminHandler(svc, appCfg.Admin.Token),
		Health:  api.NewHealthHandler(probes),
		Metrics: m,
	})
	if appCfg.Admin.Token == "" {
		slog.Warn("Admin token not set; admin endpoints disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return runServerLifecycle(ctx, srv, appCfg.Server.MaxConnections, quit)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func ttlPolicy(c *config.QueryCacheConfig) cache.TTLPolicy {
	return cache.TTLPolicy{Close: c.TTLClose.D(), Mid: c.TTLMid.D(), Wide: c.TTLWide.D()}
}

func newQueryCache(appCfg *config.Config, st store.CacheStore) (cache.QueryCache, error) {
	qc := &appCfg.QueryCache
	switch qc.Backend {
	case "memory":
		return cache.NewMemoryCache(qc.MaxEntries, ttlPolicy(qc).TTLs()...), nil
	case "sqlite":
		return cache.NewSQLiteCache(st), nil
	default:
		return nil, fmt.Errorf("unknown query cache backend %q", qc.Backend)
	}
}

func finderConfig(appCfg *config.Config) finder.Config {
	f := &appCfg.Finder
	return finder.Config{
		StoreTimeout:  f.StoreTimeout.D(),
		FetchCeiling:  f.FetchCeiling,
		DefaultRadius: int(f.DefaultRadius.Meters()),
		MinRadius:     int(f.MinRadius.Meters()),
		MaxRadius:     int(f.MaxRadius.Meters()),
		TTL:           ttlPolicy(&appCfg.QueryCache),
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, maxConns int, quit chan os.Signal) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}

	slog.Info("Starting server", "addr", srv.Addr, "max_connections", maxConns)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
