package processor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/woozymasta/geodraft/internal/geo"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml"
)

// Internal structures for XML parsing
type kmlContainer struct {
	Name       string         `xml:"name"`
	Documents  []kmlContainer `xml:"Document"`
	Folders    []kmlContainer `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	ID            string           `xml:"id,attr"`
	Name          string           `xml:"name"`
	Description   string           `xml:"description"`
	ExtendedData  *kmlExtendedData `xml:"ExtendedData"`
	Point         *kmlCoordinates  `xml:"Point"`
	LineString    *kmlCoordinates  `xml:"LineString"`
	Polygon       *kmlPolygon      `xml:"Polygon"`
	MultiGeometry *kmlMulti        `xml:"MultiGeometry"`
}

type kmlExtendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
	SchemaData []struct {
		SimpleData []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"SimpleData"`
	} `xml:"SchemaData"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoordinates   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlCoordinates `xml:"innerBoundaryIs>LinearRing"`
}

type kmlMulti struct {
	Points      []kmlCoordinates `xml:"Point"`
	LineStrings []kmlCoordinates `xml:"LineString"`
	Polygons    []kmlPolygon     `xml:"Polygon"`
	Multi       []kmlMulti       `xml:"MultiGeometry"`
}

// parseKML walks documents and folders recursively and turns every
// placemark into one feature per geometry. A MultiGeometry made only of
// points becomes a single MultiPoint.
func parseKML(data []byte, _ parseOptions) (parsed, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	var root kmlContainer
	if err := dec.Decode(&root); err != nil {
		return parsed{}, malformed("kml: %v", err)
	}

	var out parsed
	out.fc.Name = firstName(root)

	var walk func(c kmlContainer)
	walk = func(c kmlContainer) {
		for _, pm := range c.Placemarks {
			features, err := placemarkFeatures(pm)
			if err != nil {
				out.dropped++
				continue
			}
			out.fc.Features = append(out.fc.Features, features...)
		}
		for _, d := range c.Documents {
			walk(d)
		}
		for _, f := range c.Folders {
			walk(f)
		}
	}
	walk(root)

	if len(out.fc.Features) == 0 {
		return parsed{}, empty("kml has no placemarks with geometry")
	}

	return out, nil
}

func firstName(c kmlContainer) string {
	if c.Name != "" {
		return c.Name
	}
	for _, d := range c.Documents {
		if n := firstName(d); n != "" {
			return n
		}
	}
	return ""
}

func placemarkFeatures(pm kmlPlacemark) ([]geo.Feature, error) {
	props := geo.NewProperties("name", pm.Name)
	if pm.Description != "" {
		props.Set("description", pm.Description)
	}
	if ed := pm.ExtendedData; ed != nil {
		for _, d := range ed.Data {
			props.Set(d.Name, strings.TrimSpace(d.Value))
		}
		for _, sd := range ed.SchemaData {
			for _, d := range sd.SimpleData {
				props.Set(d.Name, strings.TrimSpace(d.Value))
			}
		}
	}

	var geoms []orb.Geometry
	switch {
	case pm.Point != nil:
		p, err := kmlPoint(*pm.Point)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, p)
	case pm.LineString != nil:
		line, err := parseKMLCoordinates(pm.LineString.Coordinates)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, orb.LineString(line))
	case pm.Polygon != nil:
		poly, err := kmlPolygonGeometry(*pm.Polygon)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, poly)
	case pm.MultiGeometry != nil:
		members, err := flattenMulti(*pm.MultiGeometry)
		if err != nil {
			return nil, err
		}
		geoms = collapsePoints(members)
	}

	if len(geoms) == 0 {
		return nil, fmt.Errorf("placemark %q has no geometry", pm.Name)
	}

	features := make([]geo.Feature, len(geoms))
	for i, g := range geoms {
		f := geo.Feature{ID: pm.ID, Geometry: g, Properties: props.Clone()}
		if len(geoms) > 1 && pm.ID != "" {
			f.ID = pm.ID + "-" + strconv.Itoa(i+1)
		}
		features[i] = f
	}
	return features, nil
}

func flattenMulti(m kmlMulti) ([]orb.Geometry, error) {
	var out []orb.Geometry
	for _, c := range m.Points {
		p, err := kmlPoint(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	for _, c := range m.LineStrings {
		line, err := parseKMLCoordinates(c.Coordinates)
		if err != nil {
			return nil, err
		}
		out = append(out, orb.LineString(line))
	}
	for _, p := range m.Polygons {
		poly, err := kmlPolygonGeometry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, poly)
	}
	for _, nested := range m.Multi {
		members, err := flattenMulti(nested)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return out, nil
}

// collapsePoints merges a points-only member list into one MultiPoint.
func collapsePoints(members []orb.Geometry) []orb.Geometry {
	if len(members) < 2 {
		return members
	}
	mp := make(orb.MultiPoint, 0, len(members))
	for _, g := range members {
		p, ok := g.(orb.Point)
		if !ok {
			return members
		}
		mp = append(mp, p)
	}
	return []orb.Geometry{mp}
}

func kmlPoint(c kmlCoordinates) (orb.Point, error) {
	pts, err := parseKMLCoordinates(c.Coordinates)
	if err != nil {
		return orb.Point{}, err
	}
	if len(pts) == 0 {
		return orb.Point{}, fmt.Errorf("point without coordinates")
	}
	return pts[0], nil
}

func kmlPolygonGeometry(p kmlPolygon) (orb.Polygon, error) {
	outer, err := parseKMLCoordinates(p.Outer.Coordinates)
	if err != nil {
		return nil, err
	}
	poly := orb.Polygon{orb.Ring(outer)}
	for _, in := range p.Inner {
		ring, err := parseKMLCoordinates(in.Coordinates)
		if err != nil {
			return nil, err
		}
		poly = append(poly, orb.Ring(ring))
	}
	return poly, nil
}

// parseKMLCoordinates reads whitespace separated "lon,lat[,alt]" tuples.
func parseKMLCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	pts := make([]orb.Point, 0, len(fields))
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid coordinate %q", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", parts[1])
		}
		pts = append(pts, orb.Point{lon, lat})
	}
	return pts, nil
}

// writeKML encodes the collection as a KML document. Properties are written
// as SimpleData so that they survive a re-import.
func writeKML(fc geo.FeatureCollection) ([]byte, error) {
	doc := kml.Document()
	if fc.Name != "" {
		doc.Add(kml.Name(fc.Name))
	}

	for i, f := range fc.Features {
		geom := kmlGeometry(f.Geometry)
		if geom == nil {
			continue
		}

		pm := kml.Placemark(kml.Name(featureName(f, i)))
		if f.ID != "" {
			pm.Attr = append(pm.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: f.ID})
		}
		if desc := f.Properties.String("description"); desc != "" {
			pm.Add(kml.Description(desc))
		}

		var data []kml.Element
		for _, k := range f.Properties.Keys() {
			if k == "name" || k == "description" {
				continue
			}
			data = append(data, kml.SimpleData(k, f.Properties.String(k)))
		}
		if len(data) > 0 {
			pm.Add(kml.ExtendedData(kml.SchemaData("#properties", data...)))
		}

		pm.Add(geom)
		doc.Add(pm)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := kml.KML(doc).WriteIndent(&buf, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func kmlGeometry(g orb.Geometry) kml.Element {
	switch g := g.(type) {
	case orb.Point:
		return kml.Point(kml.Coordinates(kmlCoordinate(g)))
	case orb.MultiPoint:
		points := make([]kml.Element, len(g))
		for i, p := range g {
			points[i] = kml.Point(kml.Coordinates(kmlCoordinate(p)))
		}
		return kml.MultiGeometry(points...)
	case orb.LineString:
		return kml.LineString(kml.Coordinates(kmlCoordinateList(g)...))
	case orb.Polygon:
		if len(g) == 0 {
			return nil
		}
		children := []kml.Element{
			kml.OuterBoundaryIs(kml.LinearRing(kml.Coordinates(kmlCoordinateList(g[0])...))),
		}
		for _, hole := range g[1:] {
			children = append(children, kml.InnerBoundaryIs(kml.LinearRing(kml.Coordinates(kmlCoordinateList(hole)...))))
		}
		return kml.Polygon(children...)
	default:
		return nil
	}
}

func kmlCoordinate(p orb.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p[0], Lat: p[1]}
}

func kmlCoordinateList(pts []orb.Point) []kml.Coordinate {
	out := make([]kml.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = kmlCoordinate(p)
	}
	return out
}
