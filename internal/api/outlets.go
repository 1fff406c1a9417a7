package api

import (
	"net/http"

	"shopfinder/pkg/finder"
	"shopfinder/pkg/model"
)

// OutletHandler serves the public map endpoints.
type OutletHandler struct {
	svc         *finder.Service
	defaultZoom int
}

// NewOutletHandler creates a handler. defaultZoom applies when a request omits zoom.
func NewOutletHandler(svc *finder.Service, defaultZoom int) *OutletHandler {
	return &OutletHandler{svc: svc, defaultZoom: defaultZoom}
}

// HandleSmartShops handles GET /api/smart-shops/.
func (h *OutletHandler) HandleSmartShops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	center, err := centerParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zoom, err := intParam(q, "zoom", h.defaultZoom)
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, err := radiusParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := userParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.AreaQuery(r.Context(), finder.AreaRequest{Center: center, Zoom: zoom, Radius: radius, User: user})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleNearestShops handles GET /api/nearest-shops/.
func (h *OutletHandler) HandleNearestShops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	center, err := centerParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zoom, err := intParam(q, "zoom", h.defaultZoom)
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, err := radiusParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := userParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.RangeQuery(r.Context(), finder.RangeRequest{
		Center:  center,
		Zoom:    zoom,
		Radius:  radius,
		Filter:  q.Get("products"),
		User:    user,
		NoCache: boolParam(q, "no_cache"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAllShops handles GET /api/all-shops/.
func (h *OutletHandler) HandleAllShops(w http.ResponseWriter, r *http.Request) {
	user, err := userParam(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.AllOutlets(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleClusters handles GET /api/clusters/.
func (h *OutletHandler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	center, err := centerParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zoom, err := intParam(q, "zoom", h.defaultZoom)
	if err != nil {
		writeError(w, r, err)
		return
	}
	radius, err := radiusParam(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Clusters(r.Context(), finder.ClusterRequest{Center: center, Zoom: zoom, Radius: radius})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStats handles GET /api/stats/.
func (h *OutletHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PlatformStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type productsResponse struct {
	Products []model.ProductSummary `json:"products"`
}

// HandleSearchProducts handles GET /api/search-products/.
func (h *OutletHandler) HandleSearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: products})
}
