package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shopfinder/pkg/metrics"
	"shopfinder/pkg/probe"
	"shopfinder/pkg/version"
)

// Handlers groups everything NewServer mounts.
type Handlers struct {
	Outlets *OutletHandler
	Admin   *AdminHandler
	Health  *HealthHandler
	Metrics *metrics.Collector
}

// DefaultWriteTimeout applies when NewServer gets no write timeout.
const DefaultWriteTimeout = 45 * time.Second

// NewServer creates and configures the HTTP server. writeTimeout must leave
// room for an inline snapshot rebuild.
func NewServer(addr string, writeTimeout time.Duration, h Handlers) *http.Server {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	mux := http.NewServeMux()

	// 1. Health and version
	mux.Handle("GET /health", h.Health)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.Handle("GET /metrics", h.Metrics.Handler())

	// 2. Map endpoints
	mux.HandleFunc("GET /api/smart-shops/", h.Outlets.HandleSmartShops)
	mux.HandleFunc("GET /api/nearest-shops/", h.Outlets.HandleNearestShops)
	mux.HandleFunc("GET /api/all-shops/", h.Outlets.HandleAllShops)
	mux.HandleFunc("GET /api/clusters/", h.Outlets.HandleClusters)
	mux.HandleFunc("GET /api/stats/", h.Outlets.HandleStats)
	mux.HandleFunc("GET /api/search-products/", h.Outlets.HandleSearchProducts)

	// 3. Admin endpoints
	mux.HandleFunc("POST /api/force-preload/", h.Admin.Require(h.Admin.HandleForcePreload))
	mux.HandleFunc("GET /api/cache-stats/", h.Admin.Require(h.Admin.HandleCacheStats))
	mux.HandleFunc("POST /api/cache-management/", h.Admin.Require(h.Admin.HandleCacheManagement))

	return &http.Server{
		Addr:         addr,
		Handler:      withRequestLogging(mux, h.Metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// HealthHandler runs the dependency probes on every request.
type HealthHandler struct {
	probes []probe.Probe
}

// NewHealthHandler creates a handler over probes.
func NewHealthHandler(probes []probe.Probe) *HealthHandler {
	return &HealthHandler{probes: probes}
}

type healthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Checks  []probe.Status `json:"checks"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	results := probe.Run(r.Context(), h.probes)

	resp := healthResponse{Status: "ok", Version: version.Version, Checks: probe.Statuses(results)}
	status := http.StatusOK
	if !probe.Healthy(results) {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
