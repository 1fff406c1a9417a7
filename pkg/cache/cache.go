package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"shopfinder/pkg/geo"
	"shopfinder/pkg/model"
)

// KeyPrefix starts every range query key.
const KeyPrefix = "local_shops_"

// QueryCache stores range query results under a derived key with per-entry expiry.
// Writers on the same key replace each other; entries never outlive their TTL.
type QueryCache interface {
	Get(ctx context.Context, key string) (*model.QueryResult, bool, error)
	Put(ctx context.Context, key string, result *model.QueryResult, ttl time.Duration) error
	Clear(ctx context.Context) (int, error)
	Info(ctx context.Context) (Info, error)
}

// Info describes a cache backend for operators.
type Info struct {
	Backend string     `json:"backend"`
	Entries int        `json:"entries"`
	Tiers   []TierInfo `json:"tiers,omitempty"`
}

// TierInfo is the entry count held under one TTL.
type TierInfo struct {
	TTLSeconds int `json:"ttl_seconds"`
	Entries    int `json:"entries"`
}

// TTLPolicy maps zoom levels to entry lifetimes. Closer zoom changes faster.
type TTLPolicy struct {
	Close time.Duration // zoom >= 15
	Mid   time.Duration // zoom >= 12
	Wide  time.Duration
}

// DefaultTTLPolicy is 5/15/30 minutes.
var DefaultTTLPolicy = TTLPolicy{
	Close: 5 * time.Minute,
	Mid:   15 * time.Minute,
	Wide:  30 * time.Minute,
}

// ForZoom returns the TTL for entries produced at zoom.
func (p TTLPolicy) ForZoom(zoom int) time.Duration {
	switch {
	case zoom >= 15:
		return p.Close
	case zoom >= 12:
		return p.Mid
	default:
		return p.Wide
	}
}

// TTLs returns the distinct tier durations, closest first.
func (p TTLPolicy) TTLs() []time.Duration {
	out := make([]time.Duration, 0, 3)
	for _, d := range []time.Duration{p.Close, p.Mid, p.Wide} {
		dup := false
		for _, e := range out {
			if e == d {
				dup = true
			}
		}
		if !dup {
			out = append(out, d)
		}
	}
	return out
}

// TTLForZoom applies DefaultTTLPolicy.
func TTLForZoom(zoom int) time.Duration {
	return DefaultTTLPolicy.ForZoom(zoom)
}

// Signature identifies a range query. Coordinates are rounded to 3 decimals
// (about 110 m) so nearby requests share an entry.
type Signature struct {
	Lat    float64
	Lon    float64
	Zoom   int
	Radius int
	Filter string
	User   *geo.Point
}

// NewSignature rounds center and user position into a signature.
func NewSignature(center geo.Point, zoom, radius int, filter string, user *geo.Point) Signature {
	s := Signature{
		Lat:    geo.Round(center.Lat, 3),
		Lon:    geo.Round(center.Lon, 3),
		Zoom:   zoom,
		Radius: radius,
		Filter: filter,
	}
	if user != nil {
		s.User = &geo.Point{Lat: geo.Round(user.Lat, 3), Lon: geo.Round(user.Lon, 3)}
	}
	return s
}

// Key renders local_shops_<lat>_<lon>_<zoom>_<radius>_<filter>[_user_<lat>_<lon>].
func (s Signature) Key() string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString(coord(s.Lat))
	b.WriteByte('_')
	b.WriteString(coord(s.Lon))
	fmt.Fprintf(&b, "_%d_%d_%s", s.Zoom, s.Radius, FilterToken(s.Filter))
	if s.User != nil {
		b.WriteString("_user_")
		b.WriteString(coord(s.User.Lat))
		b.WriteByte('_')
		b.WriteString(coord(s.User.Lon))
	}
	return b.String()
}

// FilterToken is a stable 16 hex digit FNV-1a digest of the raw filter string.
func FilterToken(filter string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filter))
	return fmt.Sprintf("%016x", h.Sum64())
}

func coord(v float64) string {
	// -0 and 0 must render the same
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
