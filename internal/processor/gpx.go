package processor

import (
	"strings"

	"github.com/woozymasta/geodraft/internal/geo"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"
)

// GPX type tags used to carry polygons and multi points, which GPX has no element for.
const (
	gpxTypePolygon    = "polygon"
	gpxTypeMultiPoint = "multipoint"
)

// parseGPX maps waypoints to points and tracks or routes to lines.
// Coordinates are WGS84 by definition of the format.
func parseGPX(data []byte, _ parseOptions) (parsed, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return parsed{}, malformed("gpx: %v", err)
	}

	var out parsed

	// Waypoints tagged as multipoint members are regrouped by description.
	groups := make(map[string]int)
	for _, w := range g.Waypoints {
		pt := orb.Point{w.Longitude, w.Latitude}

		if strings.EqualFold(w.Type, gpxTypeMultiPoint) && w.Description != "" {
			if i, ok := groups[w.Description]; ok {
				f := &out.fc.Features[i]
				f.Geometry = append(f.Geometry.(orb.MultiPoint), pt)
				continue
			}
			groups[w.Description] = len(out.fc.Features)
			out.fc.Features = append(out.fc.Features, geo.Feature{
				ID:         w.Description,
				Geometry:   orb.MultiPoint{pt},
				Properties: geo.NewProperties("name", w.Name),
			})
			continue
		}

		props := geo.NewProperties("name", w.Name)
		if w.Description != "" {
			props.Set("desc", w.Description)
		}
		if w.Type != "" {
			props.Set("type", w.Type)
		}
		if w.Elevation.NotNull() {
			props.Set("ele", w.Elevation.Value())
		}
		out.fc.Features = append(out.fc.Features, geo.Feature{Geometry: pt, Properties: props})
	}

	for _, trk := range g.Tracks {
		props := geo.NewProperties("name", trk.Name)
		if trk.Type != "" {
			props.Set("type", trk.Type)
		}
		if trk.Description != "" {
			props.Set("desc", trk.Description)
		}

		if strings.EqualFold(trk.Type, gpxTypePolygon) {
			if poly, ok := trackPolygon(trk); ok {
				out.fc.Features = append(out.fc.Features, geo.Feature{Geometry: poly, Properties: props})
				continue
			}
		}

		for _, seg := range trk.Segments {
			line := gpxLine(seg.Points)
			if len(line) < 2 {
				out.dropped++
				continue
			}
			out.fc.Features = append(out.fc.Features, geo.Feature{Geometry: line, Properties: props.Clone()})
		}
	}

	for _, rte := range g.Routes {
		line := gpxLine(rte.Points)
		if len(line) < 2 {
			out.dropped++
			continue
		}
		props := geo.NewProperties("name", rte.Name, "type", "route")
		if rte.Description != "" {
			props.Set("desc", rte.Description)
		}
		out.fc.Features = append(out.fc.Features, geo.Feature{Geometry: line, Properties: props})
	}

	if len(out.fc.Features) == 0 {
		return parsed{}, empty("gpx has no waypoints, tracks or routes")
	}

	return out, nil
}

// trackPolygon reads one ring per segment; the outer ring must close.
func trackPolygon(trk gpx.GPXTrack) (orb.Polygon, bool) {
	var poly orb.Polygon
	for i, seg := range trk.Segments {
		ring := orb.Ring(gpxLine(seg.Points))
		if len(ring) < 4 || !geo.IsRingClosed(ring) {
			if i == 0 {
				return nil, false
			}
			continue
		}
		poly = append(poly, ring)
	}
	return poly, len(poly) > 0
}

func gpxLine(points []gpx.GPXPoint) orb.LineString {
	line := make(orb.LineString, 0, len(points))
	for _, p := range points {
		line = append(line, orb.Point{p.Longitude, p.Latitude})
	}
	return line
}

// writeGPX encodes the collection as GPX 1.1: points as waypoints, lines as
// single segment tracks, polygons as tracks typed "polygon" with one segment
// per ring and multi points as waypoints typed "multipoint".
func writeGPX(fc geo.FeatureCollection) ([]byte, error) {
	g := &gpx.GPX{
		Version: "1.1",
		Creator: "geodraft",
		Name:    fc.Name,
	}

	for i, f := range fc.Features {
		name := featureName(f, i)

		switch geom := f.Geometry.(type) {
		case orb.Point:
			w := gpxPoint(geom)
			w.Name = name
			w.Description = f.Properties.String("desc")
			w.Type = f.Properties.String("type")
			g.Waypoints = append(g.Waypoints, w)

		case orb.MultiPoint:
			key := f.ID
			if key == "" {
				key = name
			}
			for _, p := range geom {
				w := gpxPoint(p)
				w.Name = name
				w.Description = key
				w.Type = gpxTypeMultiPoint
				g.Waypoints = append(g.Waypoints, w)
			}

		case orb.LineString:
			g.Tracks = append(g.Tracks, gpx.GPXTrack{
				Name:     name,
				Type:     f.Properties.String("type"),
				Segments: []gpx.GPXTrackSegment{{Points: gpxPoints(geom)}},
			})

		case orb.Polygon:
			trk := gpx.GPXTrack{Name: name, Type: gpxTypePolygon}
			for _, ring := range geom {
				trk.Segments = append(trk.Segments, gpx.GPXTrackSegment{Points: gpxPoints(ring)})
			}
			g.Tracks = append(g.Tracks, trk)
		}
	}

	return g.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}

func gpxPoint(p orb.Point) gpx.GPXPoint {
	var w gpx.GPXPoint
	w.Longitude = p[0]
	w.Latitude = p[1]
	return w
}

func gpxPoints(pts []orb.Point) []gpx.GPXPoint {
	out := make([]gpx.GPXPoint, len(pts))
	for i, p := range pts {
		out[i] = gpxPoint(p)
	}
	return out
}
