package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shopfinder/pkg/finder"
)

// Cache management actions.
const (
	actionClearShops   = "clear_shops"
	actionClearQueries = "clear_queries"
	actionClearAll     = "clear_all"
	actionPreloadShops = "preload_shops"
)

// AdminHandler serves the operator endpoints behind a bearer token.
type AdminHandler struct {
	svc   *finder.Service
	token string
}

// NewAdminHandler creates a handler. An empty token disables every admin endpoint.
func NewAdminHandler(svc *finder.Service, token string) *AdminHandler {
	return &AdminHandler{svc: svc, token: token}
}

// Require wraps next with the bearer token check.
func (h *AdminHandler) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin endpoints disabled"})
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin token"})
			return
		}
		next(w, r)
	}
}

type preloadResponse struct {
	Success   bool      `json:"success"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleForcePreload handles POST /api/force-preload/.
func (h *AdminHandler) HandleForcePreload(w http.ResponseWriter, r *http.Request) {
	n, at, err := h.svc.ForcePreload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preloadResponse{Success: true, Count: n, Timestamp: at.UTC()})
}

// HandleCacheStats handles GET /api/cache-stats/.
func (h *AdminHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CacheStats(r.Context()))
}

type managementResponse struct {
	Action  string       `json:"action"`
	Cleared int          `json:"cleared"`
	Loaded  int          `json:"loaded"`
	Stats   finder.Stats `json:"cache_stats"`
}

// HandleCacheManagement handles POST /api/cache-management/. The action is
// read from the query string or a form body.
func (h *AdminHandler) HandleCacheManagement(w http.ResponseWriter, r *http.Request) {
	action := r.FormValue("action")
	resp := managementResponse{Action: action}

	var err error
	switch action {
	case actionClearShops:
		resp.Cleared, err = h.svc.ClearCache(r.Context(), finder.ScopeShops)
	case actionClearQueries:
		resp.Cleared, err = h.svc.ClearCache(r.Context(), finder.ScopeQueries)
	case actionClearAll:
		resp.Cleared, err = h.svc.ClearCache(r.Context(), finder.ScopeAll)
	case actionPreloadShops:
		resp.Loaded, _, err = h.svc.ForcePreload(r.Context())
	default:
		err = finder.Invalidf("unknown action %q", action)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Cache management", "action", action, "cleared", resp.Cleared, "loaded", resp.Loaded)
	resp.Stats = h.svc.CacheStats(r.Context())
	writeJSON(w, http.StatusOK, resp)
}
