package geo

import (
	"math"
)

// EarthRadius is the mean Earth radius in meters used by all distance math.
const EarthRadius = 6371000.0

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point lies within latitude [-90,90] and longitude [-180,180].
func (p Point) Valid() bool {
	return ValidLat(p.Lat) && ValidLon(p.Lon)
}

// ValidLat reports whether lat is a finite latitude in [-90,90].
func ValidLat(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// ValidLon reports whether lon is a finite longitude in [-180,180].
func ValidLon(lon float64) bool {
	return !math.IsNaN(lon) && lon >= -180 && lon <= 180
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := toRad(p2.Lat - p1.Lat)
	dLon := toRad(p2.Lon - p1.Lon)
	lat1 := toRad(p1.Lat)
	lat2 := toRad(p2.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := toRad(start.Lat)
	lon1 := toRad(start.Lon)
	brng := toRad(bearing)
	ang := distMeters / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) +
		math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: toDeg(lat2),
		Lon: math.Mod(toDeg(lon2)+540, 360) - 180,
	}
}

// Round rounds v to the given number of decimal places (half away from zero).
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func toRad(deg float64) float64 { return deg * (math.Pi / 180.0) }
func toDeg(rad float64) float64 { return rad * (180.0 / math.Pi) }
