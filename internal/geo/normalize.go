package geo

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// ClosureTolerance is the coordinate distance under which a ring counts as closed.
const ClosureTolerance = 1e-6

// GeodeticCRS is the CRS of every normalized collection.
const GeodeticCRS = "EPSG:4326"

// ErrEmptyGeometry is returned when a collection has no usable coordinates.
var ErrEmptyGeometry = errors.New("collection has no coordinates")

// Bounds is an axis aligned geodetic box. It serializes as a Leaflet
// LatLngBounds pair: [[minLat, minLon], [maxLat, maxLon]].
type Bounds struct {
	SouthWest orb.Point // lon, lat
	NorthEast orb.Point // lon, lat
}

// Extend grows the bounds to include p.
func (b Bounds) Extend(p orb.Point) Bounds {
	return Bounds{
		SouthWest: orb.Point{math.Min(b.SouthWest[0], p[0]), math.Min(b.SouthWest[1], p[1])},
		NorthEast: orb.Point{math.Max(b.NorthEast[0], p[0]), math.Max(b.NorthEast[1], p[1])},
	}
}

// Bound returns the bounds as an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: b.SouthWest, Max: b.NorthEast}
}

// MarshalJSON writes the Leaflet pair form.
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2][2]float64{
		{b.SouthWest[1], b.SouthWest[0]},
		{b.NorthEast[1], b.NorthEast[0]},
	})
}

// UnmarshalJSON reads the Leaflet pair form.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var v [2][2]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	b.SouthWest = orb.Point{v[0][1], v[0][0]}
	b.NorthEast = orb.Point{v[1][1], v[1][0]}
	return nil
}

// BoundsOf returns the bounds of every coordinate in the collection and
// whether any coordinate was found.
func BoundsOf(fc FeatureCollection) (Bounds, bool) {
	var (
		b     Bounds
		found bool
	)
	for _, f := range fc.Features {
		forEachPoint(f.Geometry, func(p orb.Point) {
			if !found {
				b = Bounds{SouthWest: p, NorthEast: p}
				found = true
				return
			}
			b = b.Extend(p)
		})
	}
	return b, found
}

// IsRingClosed reports whether the first and last points coincide within ClosureTolerance.
func IsRingClosed(ring []orb.Point) bool {
	if len(ring) < 2 {
		return false
	}
	return samePoint(ring[0], ring[len(ring)-1])
}

// CloseRing returns a copy of ring with the first point appended when it is not already closed.
func CloseRing(ring orb.Ring) orb.Ring {
	out := ring.Clone()
	if len(out) > 0 && !IsRingClosed(out) {
		out = append(out, out[0])
	}
	return out
}

func samePoint(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) < ClosureTolerance && math.Abs(a[1]-b[1]) < ClosureTolerance
}

// NormalizeResult carries a normalized collection with its bounds and the
// number of features dropped as degenerate or unsupported.
type NormalizeResult struct {
	Collection FeatureCollection
	Bounds     Bounds
	Dropped    int
}

// Normalize returns a normalized copy of fc. See NormalizeCounted.
func Normalize(fc FeatureCollection) (FeatureCollection, Bounds, error) {
	res, err := NormalizeCounted(fc)
	if err != nil {
		return FeatureCollection{}, Bounds{}, err
	}
	return res.Collection, res.Bounds, nil
}

// NormalizeCounted returns a normalized copy of fc; the input is left untouched.
// Features with unsupported or degenerate geometry are dropped, polygon rings
// (holes included) are closed, missing IDs are assigned and the CRS is set to
// the geodetic frame. Coordinates are expected to be geodetic already.
func NormalizeCounted(fc FeatureCollection) (NormalizeResult, error) {
	out := FeatureCollection{
		Name:     fc.Name,
		CRS:      GeodeticCRS,
		Features: make([]Feature, 0, len(fc.Features)),
	}

	var dropped int
	for _, f := range fc.Features {
		g, ok := normalizeGeometry(f.Geometry)
		if !ok {
			dropped++
			continue
		}

		nf := Feature{ID: f.ID, Geometry: g, Properties: f.Properties.Clone()}
		if nf.ID == "" {
			nf.ID = uuid.NewString()
		}
		out.Features = append(out.Features, nf)
	}

	bounds, ok := BoundsOf(out)
	if !ok {
		return NormalizeResult{Dropped: dropped}, ErrEmptyGeometry
	}

	return NormalizeResult{Collection: out, Bounds: bounds, Dropped: dropped}, nil
}

func normalizeGeometry(g orb.Geometry) (orb.Geometry, bool) {
	switch g := g.(type) {
	case orb.Point:
		return g, finitePoint(g)

	case orb.MultiPoint:
		if len(g) == 0 || !allFinite(g) {
			return nil, false
		}
		return g.Clone(), true

	case orb.LineString:
		if len(g) < 2 || !allFinite(g) {
			return nil, false
		}
		return g.Clone(), true

	case orb.Polygon:
		if len(g) == 0 {
			return nil, false
		}
		out := make(orb.Polygon, 0, len(g))
		for i, r := range g {
			if !allFinite(r) || DistinctPoints(r) < 3 {
				if i == 0 {
					return nil, false
				}
				continue // degenerate hole
			}
			out = append(out, CloseRing(r))
		}
		return out, true

	default:
		return nil, false
	}
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

func allFinite(pts []orb.Point) bool {
	for _, p := range pts {
		if !finitePoint(p) {
			return false
		}
	}
	return true
}

// DistinctPoints counts the vertices of r that differ within ClosureTolerance,
// not counting a closing point.
func DistinctPoints(r orb.Ring) int {
	n := len(r)
	if IsRingClosed(r) {
		n--
	}
	count := 0
	for i := 0; i < n; i++ {
		dup := false
		for j := 0; j < i; j++ {
			if samePoint(r[i], r[j]) {
				dup = true
				break
			}
		}
		if !dup {
			count++
		}
	}
	return count
}

func forEachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.Polygon:
		for _, r := range g {
			for _, p := range r {
				fn(p)
			}
		}
	}
}
