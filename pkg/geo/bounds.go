package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// MetersPerDegree is the flat approximation of one degree of latitude.
const MetersPerDegree = 111000.0

// BoundingBox returns a lat/lon box that contains every point within radiusM
// of center. The box is a superset of the circle: callers still have to apply
// the exact Distance check. Longitude span is widened by 1/cos(lat) to account
// for meridian convergence; close to the poles it covers all longitudes.
// The box is clamped to valid coordinates and does not wrap the antimeridian.
func BoundingBox(center Point, radiusM float64) orb.Bound {
	latSpan := radiusM / MetersPerDegree

	cosLat := math.Cos(toRad(center.Lat))
	lonSpan := 180.0
	if cosLat > 1e-9 {
		lonSpan = math.Min(180.0, radiusM/(MetersPerDegree*cosLat))
	}

	return orb.Bound{
		Min: orb.Point{math.Max(-180, center.Lon-lonSpan), math.Max(-90, center.Lat-latSpan)},
		Max: orb.Point{math.Min(180, center.Lon+lonSpan), math.Min(90, center.Lat+latSpan)},
	}
}

// InBounds reports whether p falls inside b (edges inclusive).
func InBounds(b orb.Bound, p Point) bool {
	return b.Contains(orb.Point{p.Lon, p.Lat})
}
