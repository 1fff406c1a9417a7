package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shopfinder/pkg/finder"
	"shopfinder/pkg/geo"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps finder errors to status codes. Invalid input is the
// caller's fault; everything else is ours.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, finder.ErrInvalidInput) {
		status = http.StatusBadRequest
	} else {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// floatParam parses a required float query parameter.
func floatParam(q url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, finder.Invalidf("missing %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, finder.Invalidf("%s must be a number", name)
	}
	return v, nil
}

// intParam parses an optional integer query parameter, returning def when absent.
func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, finder.Invalidf("%s must be an integer", name)
	}
	return v, nil
}

// radiusParam parses an optional radius. An explicit value must be positive;
// 0 means "not given".
func radiusParam(q url.Values) (int, error) {
	if !q.Has("radius") {
		return 0, nil
	}
	r, err := intParam(q, "radius", 0)
	if err != nil {
		return 0, err
	}
	if r <= 0 {
		return 0, finder.Invalidf("radius must be positive")
	}
	return r, nil
}

func centerParam(q url.Values) (geo.Point, error) {
	lat, err := floatParam(q, "lat")
	if err != nil {
		return geo.Point{}, err
	}
	lon, err := floatParam(q, "lon")
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

// userParam parses user_lat/user_lon. Both or neither must be present.
func userParam(q url.Values) (*geo.Point, error) {
	hasLat, hasLon := q.Get("user_lat") != "", q.Get("user_lon") != ""
	if !hasLat && !hasLon {
		return nil, nil
	}
	if hasLat != hasLon {
		return nil, finder.Invalidf("user_lat and user_lon must be given together")
	}
	lat, err := floatParam(q, "user_lat")
	if err != nil {
		return nil, err
	}
	lon, err := floatParam(q, "user_lon")
	if err != nil {
		return nil, err
	}
	return &geo.Point{Lat: lat, Lon: lon}, nil
}

func boolParam(q url.Values, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(q.Get(name)))
	return err == nil && v
}
