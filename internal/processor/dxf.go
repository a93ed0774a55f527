package processor

import (
	"errors"
	"fmt"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/dxf"
	"github.com/woozymasta/geodraft/internal/geo"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// parseDXF reads the drawing entities and reprojects every vertex from the
// source CRS into the geodetic frame.
func parseDXF(data []byte, opts parseOptions) (parsed, error) {
	var readOpts []dxf.Option
	if dxf.IsBinary(data) {
		readOpts = append(readOpts, dxf.WithStringDecoder(decodeLegacyString))
	} else {
		text, charset, err := toUTF8(data)
		if err != nil {
			return parsed{}, malformed("%v", err)
		}
		if charset != "UTF-8" {
			log.Debug().Str("file", opts.filename).Str("charset", charset).Msg("DXF decoded to UTF-8")
		}
		data = text
	}

	drawing, err := dxf.Parse(data, readOpts...)
	if err != nil {
		if errors.Is(err, dxf.ErrMalformed) {
			return parsed{}, &ParseError{Reason: ReasonMalformed, Err: err}
		}
		return parsed{}, err
	}

	var out parsed
	out.dropped = drawing.Skipped

	project, warning := opts.projector()
	if warning != "" {
		out.warnings = append(out.warnings, warning)
	}

	for _, e := range drawing.Entities {
		pts := make([]orb.Point, len(e.Points))
		ok := true
		for i, p := range e.Points {
			q, err := project(p)
			if err != nil {
				ok = false
				break
			}
			pts[i] = q
		}
		if !ok {
			out.dropped++
			continue
		}

		props := geo.NewProperties("layer", e.Layer, "entity", e.Type)
		if e.Handle != "" {
			props.Set("handle", e.Handle)
		}

		out.fc.Features = append(out.fc.Features, geo.Feature{
			Geometry:   entityGeometry(e, pts),
			Properties: props,
		})
	}

	if len(out.fc.Features) == 0 {
		return parsed{}, empty("no drawable entities (%d skipped)", out.dropped)
	}

	return out, nil
}

// entityGeometry maps an entity class onto the feature model. Closure is
// tested on the source coordinates so that the tolerance applies to drawing units.
func entityGeometry(e dxf.Entity, pts []orb.Point) orb.Geometry {
	switch e.Class {
	case dxf.ClassPoint:
		return pts[0]
	case dxf.ClassLine:
		return orb.LineString(pts)
	default:
		// a ring folding back on itself (a, b, a) stays a line
		if geo.DistinctPoints(e.Points) >= 3 && (e.Closed || geo.IsRingClosed(e.Points)) {
			ring := orb.Ring(pts)
			if !geo.IsRingClosed(e.Points) {
				ring = append(ring, pts[0])
			}
			return orb.Polygon{ring}
		}
		return orb.LineString(pts)
	}
}

// source resolves the source CRS. An empty result means coordinates are
// read as geodetic; a missing or unknown CRS also yields a warning.
func (o parseOptions) source() (string, string) {
	if o.crs == "" {
		log.Warn().
			Str("file", o.filename).
			Msg("No source CRS, coordinates read as geodetic")
		return "", "no source CRS: coordinates read as geodetic"
	}
	if o.engine == nil {
		return "", ""
	}

	src, err := o.engine.Registry().Lookup(o.crs)
	if err != nil {
		log.Warn().
			Str("file", o.filename).
			Str("crs", o.crs).
			Msg("Unknown source CRS, coordinates read as geodetic")
		return "", fmt.Sprintf("unknown source CRS %q: coordinates read as geodetic", o.crs)
	}
	if src.ID == crs.GeodeticID {
		return "", ""
	}
	return src.ID, ""
}

// projector returns the point conversion for the source CRS.
func (o parseOptions) projector() (func(orb.Point) (orb.Point, error), string) {
	src, warning := o.source()
	if src == "" {
		return func(p orb.Point) (orb.Point, error) { return p, nil }, warning
	}

	return func(p orb.Point) (orb.Point, error) {
		return o.engine.Transform(p, src, crs.GeodeticID)
	}, warning
}
