package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Metrics holds the perimeter and area of a polygon ring in the units of its coordinates.
type Metrics struct {
	Perimeter float64 `json:"perimeter"`
	Area      float64 `json:"area"`
}

// Distance returns the sum of the Euclidean segment lengths of the polyline.
// Segments touching a non-finite coordinate are skipped; fewer than two points yields 0.
func Distance(points []orb.Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if !finitePoint(a) || !finitePoint(b) {
			continue
		}
		total += planar.Distance(a, b)
	}
	return total
}

// PolygonMetrics returns the closed loop perimeter and the absolute Shoelace
// area of a ring. An explicit closing point is accepted and adds nothing.
// Fewer than three points yields zero metrics.
func PolygonMetrics(ring []orb.Point) Metrics {
	if len(ring) < 3 {
		return Metrics{}
	}

	var m Metrics
	var twiceArea float64
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if !finitePoint(a) || !finitePoint(b) {
			continue
		}
		m.Perimeter += planar.Distance(a, b)
		twiceArea += a[0]*b[1] - b[0]*a[1]
	}
	m.Area = math.Abs(twiceArea) / 2

	return m
}

// GeodesicLength returns the haversine length of a geodetic polyline in metres.
func GeodesicLength(points []orb.Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if !finitePoint(a) || !finitePoint(b) {
			continue
		}
		total += orbgeo.DistanceHaversine(a, b)
	}
	return total
}

// Measure returns metrics for a geometry: length as perimeter for lines,
// outer perimeter and area minus holes for polygons, zero otherwise.
func Measure(g orb.Geometry) Metrics {
	switch g := g.(type) {
	case orb.LineString:
		return Metrics{Perimeter: Distance(g)}
	case orb.Ring:
		return PolygonMetrics(g)
	case orb.Polygon:
		if len(g) == 0 {
			return Metrics{}
		}
		m := PolygonMetrics(g[0])
		for _, hole := range g[1:] {
			m.Area -= PolygonMetrics(hole).Area
		}
		if m.Area < 0 {
			m.Area = 0
		}
		return m
	default:
		return Metrics{}
	}
}
