// Package edit applies drag deltas to feature collections.
package edit

import (
	"errors"
	"fmt"
	"math"

	"github.com/woozymasta/geodraft/internal/geo"

	"github.com/paulmach/orb"
)

var (
	// ErrUnknownFeature is returned when a delta targets an ID not in the collection.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrInvalidDelta is returned when a delta cannot be applied to its target geometry.
	ErrInvalidDelta = errors.New("invalid delta")
)

// Op is the kind of a Delta.
type Op string

// Delta operations.
const (
	OpTranslate Op = "translate"
	OpReplace   Op = "replace"
)

// Delta is one drag step on a feature. A translation moves every vertex by
// (DX, DY). A replacement swaps the vertex list of one part: the point, the
// member set of a multi point, the line, or ring Ring of a polygon.
type Delta struct {
	Feature  string      `json:"feature"`
	Op       Op          `json:"op"`
	DX       float64     `json:"dx,omitempty"`
	DY       float64     `json:"dy,omitempty"`
	Ring     int         `json:"ring,omitempty"`
	Vertices []orb.Point `json:"vertices,omitempty"`
}

// Translate returns a delta moving feature id by (dx, dy).
func Translate(id string, dx, dy float64) Delta {
	return Delta{Feature: id, Op: OpTranslate, DX: dx, DY: dy}
}

// Replace returns a delta replacing part ring of feature id with vertices.
func Replace(id string, ring int, vertices []orb.Point) Delta {
	return Delta{Feature: id, Op: OpReplace, Ring: ring, Vertices: vertices}
}

// Apply returns a copy of fc with the deltas applied in order. fc itself is
// never modified. Only the geometries of targeted features change; IDs,
// properties and ordering are kept. If any delta fails nothing is returned.
func Apply(fc geo.FeatureCollection, deltas ...Delta) (geo.FeatureCollection, error) {
	out := fc
	out.Features = make([]geo.Feature, len(fc.Features))
	copy(out.Features, fc.Features)

	for i, d := range deltas {
		idx := out.Index(d.Feature)
		if idx < 0 {
			return geo.FeatureCollection{}, fmt.Errorf("delta %d: %w: %q", i, ErrUnknownFeature, d.Feature)
		}

		g, err := applyDelta(out.Features[idx].Geometry, d)
		if err != nil {
			return geo.FeatureCollection{}, fmt.Errorf("delta %d on %q: %w", i, d.Feature, err)
		}
		out.Features[idx].Geometry = g
	}

	return out, nil
}

// applyDelta returns the new geometry; g is left untouched.
func applyDelta(g orb.Geometry, d Delta) (orb.Geometry, error) {
	switch d.Op {
	case OpTranslate:
		if !finite(d.DX) || !finite(d.DY) {
			return nil, fmt.Errorf("%w: non-finite offset", ErrInvalidDelta)
		}
		return translate(g, d.DX, d.DY)
	case OpReplace:
		for _, p := range d.Vertices {
			if !finite(p[0]) || !finite(p[1]) {
				return nil, fmt.Errorf("%w: non-finite vertex", ErrInvalidDelta)
			}
		}
		return replace(g, d.Ring, d.Vertices)
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidDelta, d.Op)
	}
}

func translate(g orb.Geometry, dx, dy float64) (orb.Geometry, error) {
	shift := func(pts []orb.Point) []orb.Point {
		out := make([]orb.Point, len(pts))
		for i, p := range pts {
			out[i] = orb.Point{p[0] + dx, p[1] + dy}
		}
		return out
	}

	switch g := g.(type) {
	case orb.Point:
		return orb.Point{g[0] + dx, g[1] + dy}, nil
	case orb.MultiPoint:
		return orb.MultiPoint(shift(g)), nil
	case orb.LineString:
		return orb.LineString(shift(g)), nil
	case orb.Polygon:
		poly := make(orb.Polygon, len(g))
		for i, r := range g {
			poly[i] = orb.Ring(shift(r))
		}
		return poly, nil
	default:
		return nil, fmt.Errorf("%w: cannot move %T", ErrInvalidDelta, g)
	}
}

func replace(g orb.Geometry, ring int, vertices []orb.Point) (orb.Geometry, error) {
	pts := make([]orb.Point, len(vertices))
	copy(pts, vertices)

	switch g := g.(type) {
	case orb.Point:
		if ring != 0 || len(pts) != 1 {
			return nil, fmt.Errorf("%w: a point takes exactly one vertex", ErrInvalidDelta)
		}
		return pts[0], nil

	case orb.MultiPoint:
		if ring != 0 || len(pts) == 0 {
			return nil, fmt.Errorf("%w: empty multi point", ErrInvalidDelta)
		}
		return orb.MultiPoint(pts), nil

	case orb.LineString:
		if ring != 0 || len(pts) < 2 {
			return nil, fmt.Errorf("%w: a line needs at least 2 vertices", ErrInvalidDelta)
		}
		return orb.LineString(pts), nil

	case orb.Polygon:
		if ring < 0 || ring >= len(g) {
			return nil, fmt.Errorf("%w: ring %d out of range (%d rings)", ErrInvalidDelta, ring, len(g))
		}
		r := geo.CloseRing(orb.Ring(pts))
		if len(r) < 4 {
			return nil, fmt.Errorf("%w: a ring needs at least 3 vertices", ErrInvalidDelta)
		}

		poly := make(orb.Polygon, len(g))
		copy(poly, g)
		poly[ring] = r
		return poly, nil

	default:
		return nil, fmt.Errorf("%w: cannot reshape %T", ErrInvalidDelta, g)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
