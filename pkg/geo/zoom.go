package geo

// Zoom bounds accepted from map clients.
const (
	MinZoom = 0
	MaxZoom = 22
)

// RadiusForZoom maps a map zoom level to a search radius in meters.
// Coarse zoom falls back to a worldwide radius instead of returning nothing.
func RadiusForZoom(zoom int) int {
	switch {
	case zoom >= 17:
		return 5_000
	case zoom >= 16:
		return 11_000
	case zoom >= 14:
		return 30_000
	case zoom >= 12:
		return 80_000
	case zoom >= 10:
		return 100_000
	case zoom >= 8:
		return 150_000
	case zoom >= 6:
		return 300_000
	default:
		return 10_000_000
	}
}

// ResultLimit caps the number of outlets returned for a zoom level.
// It must be applied after distance filtering and sorting.
func ResultLimit(zoom int) int {
	switch {
	case zoom >= 15:
		return 500
	case zoom >= 12:
		return 1_000
	default:
		return 2_000
	}
}
