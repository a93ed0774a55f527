// Package reproject converts coordinates between the geodetic frame and the
// registered Lambert conformal conic zones.
//
// Every transform goes through WGS84: geodetic coordinates on the source
// ellipsoid are converted to geocentric cartesian, shifted with the datum's
// Helmert parameters and converted back to geodetic on the target ellipsoid.
// The engine holds no mutable state and is safe for concurrent use.
package reproject

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/woozymasta/geodraft/internal/crs"
)

var (
	// ErrNonFinite is returned for NaN or infinite input or output coordinates.
	ErrNonFinite = errors.New("non-finite coordinate")

	// ErrUnsupportedGeometry is returned by TransformGeometry for geometry kinds it does not handle.
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
)

type frame struct {
	def   crs.CRS
	proj  *lcc
	datum helmert
	// wgs84 is true when the frame needs no datum shift at all.
	wgs84 bool
}

// Engine performs coordinate transforms against a registry.
type Engine struct {
	reg    *crs.Registry
	frames map[string]*frame
}

// New builds an engine with projection constants precomputed for every registered CRS.
func New(reg *crs.Registry) *Engine {
	e := &Engine{reg: reg, frames: make(map[string]*frame)}

	for _, c := range reg.All() {
		f := &frame{
			def:   c,
			datum: newHelmert(c.ToWGS84),
			wgs84: !c.HasDatumShift() && c.Ellipsoid.Equal(crs.WGS84),
		}
		if c.Family == crs.FamilyLCC {
			f.proj = newLCC(c)
		}
		e.frames[c.ID] = f
	}

	return e
}

// Registry returns the registry the engine was built from.
func (e *Engine) Registry() *crs.Registry {
	return e.reg
}

func (e *Engine) frame(id string) (*frame, error) {
	c, err := e.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	return e.frames[c.ID], nil
}

// Forward projects a geodetic coordinate in src into the projected CRS dst.
func (e *Engine) Forward(p orb.Point, src, dst string) (orb.Point, error) {
	from, to, err := e.pair(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	if from.proj != nil {
		return orb.Point{}, fmt.Errorf("forward: source %s is not geodetic", from.def.ID)
	}
	if to.proj == nil && from != to {
		return orb.Point{}, fmt.Errorf("forward: target %s is not projected", to.def.ID)
	}
	return e.transform(p, from, to)
}

// Inverse converts a projected coordinate in src into the geodetic CRS dst.
func (e *Engine) Inverse(p orb.Point, src, dst string) (orb.Point, error) {
	from, to, err := e.pair(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	if from.proj == nil && from != to {
		return orb.Point{}, fmt.Errorf("inverse: source %s is not projected", from.def.ID)
	}
	if to.proj != nil && from != to {
		return orb.Point{}, fmt.Errorf("inverse: target %s is not geodetic", to.def.ID)
	}
	return e.transform(p, from, to)
}

// Transform converts a coordinate between any two registered CRS.
// It is the identity when both identifiers resolve to the same CRS.
func (e *Engine) Transform(p orb.Point, src, dst string) (orb.Point, error) {
	from, to, err := e.pair(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	return e.transform(p, from, to)
}

func (e *Engine) pair(src, dst string) (*frame, *frame, error) {
	from, err := e.frame(src)
	if err != nil {
		return nil, nil, err
	}
	to, err := e.frame(dst)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (e *Engine) transform(p orb.Point, from, to *frame) (orb.Point, error) {
	if !finite(p) {
		return orb.Point{}, fmt.Errorf("%w: %v", ErrNonFinite, p)
	}
	if from == to {
		return p, nil
	}

	// source to geodetic on its own ellipsoid
	lon, lat := p[0], p[1]
	if from.proj != nil {
		lon, lat = from.proj.inverse(lon, lat)
	}

	// datum change through WGS84 geocentric
	if !(from.wgs84 && to.wgs84) && !sameDatum(from, to) {
		v := toGeocentric(lon, lat, from.def.Ellipsoid)
		v = from.datum.forward(v)
		v = to.datum.inverse(v)
		lon, lat = fromGeocentric(v, to.def.Ellipsoid)
	}

	out := orb.Point{lon, lat}
	if to.proj != nil {
		out[0], out[1] = to.proj.forward(lon, lat)
	}

	if !finite(out) {
		return orb.Point{}, fmt.Errorf("%w: %v from %s to %s", ErrNonFinite, p, from.def.ID, to.def.ID)
	}
	return out, nil
}

func sameDatum(a, b *frame) bool {
	return a.def.ToWGS84 == b.def.ToWGS84 && a.def.Ellipsoid.Equal(b.def.Ellipsoid)
}

// TransformGeometry returns a transformed copy of g. The input is never modified.
func (e *Engine) TransformGeometry(g orb.Geometry, src, dst string) (orb.Geometry, error) {
	from, to, err := e.pair(src, dst)
	if err != nil {
		return nil, err
	}

	conv := func(p orb.Point) (orb.Point, error) { return e.transform(p, from, to) }

	switch g := g.(type) {
	case orb.Point:
		out, err := conv(g)
		if err != nil {
			return nil, err
		}
		return out, nil
	case orb.MultiPoint:
		out, err := convertPoints([]orb.Point(g), conv)
		if err != nil {
			return nil, err
		}
		return orb.MultiPoint(out), nil
	case orb.LineString:
		out, err := convertPoints([]orb.Point(g), conv)
		if err != nil {
			return nil, err
		}
		return orb.LineString(out), nil
	case orb.Ring:
		out, err := convertPoints([]orb.Point(g), conv)
		if err != nil {
			return nil, err
		}
		return orb.Ring(out), nil
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for i, r := range g {
			pts, err := convertPoints([]orb.Point(r), conv)
			if err != nil {
				return nil, err
			}
			out[i] = orb.Ring(pts)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedGeometry)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

func convertPoints(in []orb.Point, conv func(orb.Point) (orb.Point, error)) ([]orb.Point, error) {
	out := make([]orb.Point, len(in))
	for i, p := range in {
		q, err := conv(p)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
