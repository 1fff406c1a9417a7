package geo

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"
)

// Cluster is a group of outlets sharing one H3 cell.
type Cluster struct {
	Cell  string  `json:"cell"`
	Lat   float64 `json:"lat"` // Cell center
	Lon   float64 `json:"lon"`
	Count int     `json:"count"`
}

// ClusterResolution picks the H3 resolution used to group markers at a zoom level.
func ClusterResolution(zoom int) int {
	switch {
	case zoom >= 16:
		return 9
	case zoom >= 14:
		return 8
	case zoom >= 12:
		return 7
	case zoom >= 10:
		return 6
	case zoom >= 8:
		return 5
	case zoom >= 6:
		return 4
	default:
		return 3
	}
}

// ClusterPoints groups points into H3 cells at the resolution for zoom.
// Clusters are ordered by descending count, then by cell id.
func ClusterPoints(points []Point, zoom int) ([]Cluster, error) {
	res := ClusterResolution(zoom)
	counts := make(map[h3.Cell]int)

	for _, p := range points {
		cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), res)
		if err != nil {
			return nil, fmt.Errorf("h3 index for %.6f,%.6f: %w", p.Lat, p.Lon, err)
		}
		counts[cell]++
	}

	clusters := make([]Cluster, 0, len(counts))
	for cell, n := range counts {
		center, err := h3.CellToLatLng(cell)
		if err != nil {
			return nil, fmt.Errorf("h3 center for %s: %w", cell, err)
		}
		clusters = append(clusters, Cluster{
			Cell:  cell.String(),
			Lat:   Round(center.Lat, 6),
			Lon:   Round(center.Lng, 6),
			Count: n,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].Cell < clusters[j].Cell
	})
	return clusters, nil
}
