package processor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/paulmach/orb"
)

func newTestImporter() *Importer {
	return NewImporter(reproject.New(crs.Default()), "EPSG:26191")
}

func dxfDoc(entities ...string) []byte {
	pairs := append([]string{"0", "SECTION", "2", "ENTITIES"}, entities...)
	pairs = append(pairs, "0", "ENDSEC", "0", "EOF")
	return []byte(strings.Join(pairs, "\n") + "\n")
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "plan.dxf", want: FormatDXF},
		{name: "PLAN.DXF", want: FormatDXF},
		{name: "walk.gpx", want: FormatGPX},
		{name: "zones.kml", want: FormatKML},
		{name: "parcels.geojson", want: FormatGeoJSON},
		{name: "parcels.json", want: FormatGeoJSON},
		{name: "archive.kmz", wantErr: true},
		{name: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
				}
				var pe *ParseError
				if !errors.As(err, &pe) || pe.Reason != ReasonUnsupportedFormat {
					t.Fatalf("err = %v, want ParseError", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("FormatFromFilename = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestImportDXFClosedPolyline(t *testing.T) {
	data := dxfDoc(
		"0", "LWPOLYLINE", "8", "parcels", "90", "4", "70", "1",
		"10", "500000", "20", "300000",
		"10", "500100", "20", "300000",
		"10", "500100", "20", "300100",
		"10", "500000", "20", "300100",
		"0", "MTEXT", "8", "labels",
	)

	res, err := newTestImporter().Import(context.Background(), "lot-12.dxf", data, "EPSG:26191")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(res.Collection.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(res.Collection.Features))
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if res.Name != "lot-12" || res.Format != FormatDXF {
		t.Errorf("Name = %q, Format = %q", res.Name, res.Format)
	}

	f := res.Collection.Features[0]
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry = %T, want Polygon", f.Geometry)
	}
	if len(poly[0]) != 5 || !geo.IsRingClosed(poly[0]) {
		t.Errorf("ring = %v, want 5 closed points", poly[0])
	}
	if f.Properties.String("layer") != "parcels" {
		t.Errorf("layer = %q", f.Properties.String("layer"))
	}

	// the zone origin sits near 5.4W 33.3N
	p := poly[0][0]
	if math.Abs(p[0]+5.4) > 0.01 || math.Abs(p[1]-33.3) > 0.01 {
		t.Errorf("first vertex %v not reprojected near the zone origin", p)
	}
	if res.Collection.CRS != crs.GeodeticID {
		t.Errorf("CRS = %q", res.Collection.CRS)
	}
}

func TestImportDXFUnknownCRS(t *testing.T) {
	data := dxfDoc("0", "POINT", "8", "0", "10", "-6.5", "20", "34.1")

	res, err := newTestImporter().Import(context.Background(), "pts.dxf", data, "EPSG:99999")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", res.Warnings)
	}
	if got := res.Collection.Features[0].Geometry.(orb.Point); got != (orb.Point{-6.5, 34.1}) {
		t.Errorf("point = %v, want raw coordinates", got)
	}
}

func TestImportDXFNoSourceCRS(t *testing.T) {
	im := NewImporter(reproject.New(crs.Default()), "")
	data := dxfDoc("0", "POINT", "8", "0", "10", "-6.5", "20", "34.1")

	res, err := im.Import(context.Background(), "pts.dxf", data, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "no source CRS") {
		t.Fatalf("warnings = %v, want the missing CRS fallback", res.Warnings)
	}
	if got := res.Collection.Features[0].Geometry.(orb.Point); got != (orb.Point{-6.5, 34.1}) {
		t.Errorf("point = %v, want raw coordinates", got)
	}
}

func TestImportDXFFoldedPolyline(t *testing.T) {
	tests := []struct {
		name     string
		entities []string
		want     string
	}{
		{
			name: "closed flag",
			entities: []string{"0", "LWPOLYLINE", "90", "3", "70", "1",
				"10", "500000", "20", "300000", "10", "500100", "20", "300000", "10", "500000", "20", "300000"},
			want: "LineString",
		},
		{
			name: "geometric closure",
			entities: []string{"0", "LWPOLYLINE", "90", "3", "70", "0",
				"10", "500000", "20", "300000", "10", "500100", "20", "300000", "10", "500000", "20", "300000"},
			want: "LineString",
		},
		{
			name: "triangle",
			entities: []string{"0", "LWPOLYLINE", "90", "3", "70", "1",
				"10", "500000", "20", "300000", "10", "500100", "20", "300000", "10", "500100", "20", "300100"},
			want: "Polygon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestImporter().Import(context.Background(), "fold.dxf", dxfDoc(tt.entities...), "")
			if err != nil {
				t.Fatal(err)
			}
			if res.Dropped != 0 || len(res.Collection.Features) != 1 {
				t.Fatalf("features = %d, dropped = %d", len(res.Collection.Features), res.Dropped)
			}
			if got := res.Collection.Features[0].Geometry.GeoJSONType(); got != tt.want {
				t.Errorf("geometry = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestImportErrors(t *testing.T) {
	im := newTestImporter()

	tests := []struct {
		name     string
		filename string
		data     string
		want     error
	}{
		{name: "unsupported", filename: "a.shp", data: "x", want: ErrUnsupportedFormat},
		{name: "empty dxf", filename: "a.dxf", data: string(dxfDoc("0", "HATCH", "8", "0")), want: ErrEmpty},
		{name: "bad dxf", filename: "a.dxf", data: "0\nSECTION\nabc\nENTITIES\n", want: ErrMalformed},
		{name: "bad json", filename: "a.geojson", data: `{"type":`, want: ErrMalformed},
		{name: "no features", filename: "a.geojson", data: `{"type":"FeatureCollection"}`, want: ErrMalformed},
		{name: "degenerate only", filename: "a.geojson", data: `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0]]},"properties":{}}]}`, want: ErrEmpty},
		{name: "bad kml", filename: "a.kml", data: "<kml><Document>", want: ErrMalformed},
		{name: "bad gpx", filename: "a.gpx", data: "not xml", want: ErrMalformed},
		{name: "zero byte dxf", filename: "a.dxf", data: "", want: ErrEmpty},
		{name: "blank dxf", filename: "a.dxf", data: "  \n", want: ErrEmpty},
		{name: "zero byte geojson", filename: "a.geojson", data: "", want: ErrEmpty},
		{name: "blank geojson", filename: "a.geojson", data: "  \n", want: ErrEmpty},
		{name: "zero byte gpx", filename: "a.gpx", data: "", want: ErrEmpty},
		{name: "blank gpx", filename: "a.gpx", data: "  \n", want: ErrEmpty},
		{name: "zero byte kml", filename: "a.kml", data: "", want: ErrEmpty},
		{name: "blank kml", filename: "a.kml", data: "  \n", want: ErrEmpty},
		{name: "blank unsupported", filename: "a.shp", data: "  \n", want: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(context.Background(), tt.filename, []byte(tt.data), "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestImporter().Import(ctx, "a.geojson", []byte(`[]`), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestImportGeoJSON(t *testing.T) {
	doc := `{"type":"FeatureCollection","name":"mixed","features":[
		{"type":"Feature","id":"a","geometry":{"type":"Polygon","coordinates":[[[-6,33],[-5.9,33],[-5.9,33.1]]]},"properties":{"owner":"x"}},
		{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]},"properties":{}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-6.2,33.5]},"properties":null}
	]}`

	res, err := newTestImporter().Import(context.Background(), "mixed.geojson", []byte(doc), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Collection.Features) != 2 || res.Dropped != 1 {
		t.Fatalf("features = %d, dropped = %d", len(res.Collection.Features), res.Dropped)
	}
	if res.Collection.Features[0].ID != "a" {
		t.Errorf("id = %q", res.Collection.Features[0].ID)
	}
	ring := res.Collection.Features[0].Geometry.(orb.Polygon)[0]
	if !geo.IsRingClosed(ring) {
		t.Error("ring not closed")
	}
	if res.Bounds.SouthWest != (orb.Point{-6.2, 33}) || res.Bounds.NorthEast != (orb.Point{-5.9, 33.5}) {
		t.Errorf("bounds = %+v", res.Bounds)
	}
}

func TestImportGeoJSONProjected(t *testing.T) {
	doc := `{"type":"FeatureCollection","crs":"EPSG:26191","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[500000,300000]},"properties":{}},
		{"type":"Feature","geometry":{"type":"MultiLineString","coordinates":[[[500000,300000],[500100,300000]]]},"properties":{}},
		{"type":"Feature","geometry":{"type":"LineString","coordinates":[[500000,300000],[500100,300100]]},"properties":{}}
	]}`

	res, err := newTestImporter().Import(context.Background(), "p.geojson", []byte(doc), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Collection.Features) != 2 || res.Dropped != 1 {
		t.Fatalf("features = %d, dropped = %d", len(res.Collection.Features), res.Dropped)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v", res.Warnings)
	}

	p := res.Collection.Features[0].Geometry.(orb.Point)
	if math.Abs(p[0]+5.4) > 0.01 || math.Abs(p[1]-33.3) > 0.01 {
		t.Errorf("point %v not reprojected", p)
	}
	ls := res.Collection.Features[1].Geometry.(orb.LineString)
	if ls[0] != p || math.Abs(ls[1][1]-33.3) > 0.01 {
		t.Errorf("line %v not reprojected", ls)
	}
}

const sampleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>Survey</name>
    <Folder>
      <name>Outer</name>
      <Placemark id="well">
        <name>Well</name>
        <ExtendedData><Data name="depth"><value>12</value></Data></ExtendedData>
        <Point><coordinates>-6.1,33.9,0</coordinates></Point>
      </Placemark>
      <Folder>
        <Placemark>
          <name>Field</name>
          <Polygon>
            <outerBoundaryIs><LinearRing><coordinates>-6,33 -5.9,33 -5.9,33.1 -6,33</coordinates></LinearRing></outerBoundaryIs>
            <innerBoundaryIs><LinearRing><coordinates>-5.98,33.02 -5.96,33.02 -5.96,33.04</coordinates></LinearRing></innerBoundaryIs>
          </Polygon>
        </Placemark>
        <Placemark>
          <name>Trees</name>
          <MultiGeometry>
            <Point><coordinates>-6.01,33.01</coordinates></Point>
            <Point><coordinates>-6.02,33.02</coordinates></Point>
          </MultiGeometry>
        </Placemark>
        <Placemark>
          <name>Mixed</name>
          <MultiGeometry>
            <Point><coordinates>-6.03,33.03</coordinates></Point>
            <LineString><coordinates>-6,33 -6.1,33.1</coordinates></LineString>
          </MultiGeometry>
        </Placemark>
        <Placemark>
          <name>Broken</name>
          <Point><coordinates>east,north</coordinates></Point>
        </Placemark>
      </Folder>
    </Folder>
  </Document>
</kml>`

func TestImportKML(t *testing.T) {
	res, err := newTestImporter().Import(context.Background(), "survey.kml", []byte(sampleKML), "")
	if err != nil {
		t.Fatal(err)
	}

	fc := res.Collection
	if fc.Name != "Survey" {
		t.Errorf("Name = %q", fc.Name)
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}

	kinds := make([]string, len(fc.Features))
	for i, f := range fc.Features {
		k, _ := geo.KindOf(f.Geometry)
		kinds[i] = string(k)
	}
	if got := strings.Join(kinds, ","); got != "Point,Polygon,MultiPoint,Point,LineString" {
		t.Fatalf("kinds = %s", got)
	}

	well := fc.Features[0]
	if well.ID != "well" || well.Properties.String("depth") != "12" || well.Properties.String("name") != "Well" {
		t.Errorf("well = %+v", well)
	}

	field := fc.Features[1].Geometry.(orb.Polygon)
	if len(field) != 2 || !geo.IsRingClosed(field[1]) {
		t.Errorf("field = %v, want closed hole", field)
	}
}

func TestExportRoundTrip(t *testing.T) {
	engine := reproject.New(crs.Default())
	im := NewImporter(engine, "EPSG:26191")
	x := NewExporter(engine, ExportOptions{})

	src := geo.FeatureCollection{
		Name: "roundtrip",
		Features: []geo.Feature{
			{ID: "p1", Geometry: orb.Point{-6.1, 33.9}, Properties: geo.NewProperties("name", "Well", "layer", "wells")},
			{ID: "l1", Geometry: orb.LineString{{-6, 33}, {-6.1, 33.1}, {-6.2, 33.1}}, Properties: geo.NewProperties("name", "Track")},
			{ID: "a1", Geometry: orb.Polygon{{{-6, 33}, {-5.9, 33}, {-5.9, 33.1}, {-6, 33}}}, Properties: geo.NewProperties("name", "Field", "layer", "parcels")},
			{ID: "m1", Geometry: orb.MultiPoint{{-6.01, 33.01}, {-6.02, 33.02}}, Properties: geo.NewProperties("name", "Trees")},
		},
	}

	for _, format := range []Format{FormatGPX, FormatKML, FormatGeoJSON, FormatDXF} {
		t.Run(string(format), func(t *testing.T) {
			data, err := x.Export(src, format)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}

			res, err := im.Import(context.Background(), "out"+format.Ext(), data, "EPSG:26191")
			if err != nil {
				t.Fatalf("Import: %v", err)
			}

			// DXF has no multi point entity, each member comes back as a point
			want := map[geo.Kind]int{geo.KindPoint: 1, geo.KindLineString: 1, geo.KindPolygon: 1, geo.KindMultiPoint: 1}
			if format == FormatDXF {
				want = map[geo.Kind]int{geo.KindPoint: 3, geo.KindLineString: 1, geo.KindPolygon: 1}
			}
			got := map[geo.Kind]int{}
			for _, f := range res.Collection.Features {
				k, _ := geo.KindOf(f.Geometry)
				got[k]++
			}
			for k, n := range want {
				if got[k] != n {
					t.Errorf("%s: got %d, want %d (all: %v)", k, got[k], n, got)
				}
			}

			for _, f := range res.Collection.Features {
				if poly, ok := f.Geometry.(orb.Polygon); ok {
					if len(poly[0]) != 4 {
						t.Fatalf("ring = %v", poly[0])
					}
					for i, p := range poly[0] {
						w := src.Features[2].Geometry.(orb.Polygon)[0][i]
						if math.Abs(p[0]-w[0]) > 1e-6 || math.Abs(p[1]-w[1]) > 1e-6 {
							t.Errorf("vertex %d = %v, want %v", i, p, w)
						}
					}
				}
			}
		})
	}
}

func TestExportMinify(t *testing.T) {
	engine := reproject.New(crs.Default())
	fc := geo.FeatureCollection{Features: []geo.Feature{{ID: "p", Geometry: orb.Point{-6, 33}}}}

	plain, err := NewExporter(engine, ExportOptions{}).Export(fc, FormatGeoJSON)
	if err != nil {
		t.Fatal(err)
	}
	small, err := NewExporter(engine, ExportOptions{Minify: true}).Export(fc, FormatGeoJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(small) >= len(plain) || strings.Contains(string(small), "\n") {
		t.Errorf("minified output not smaller:\n%s", small)
	}
}

func TestImportStateMachine(t *testing.T) {
	imp := NewImport(newTestImporter())
	ctx := context.Background()
	doc := []byte(`[{"type":"Feature","geometry":{"type":"Point","coordinates":[-6,33]},"properties":{"name":"a"}}]`)

	if _, err := imp.Confirm("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm from idle: %v", err)
	}
	if err := imp.Decline(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("decline from idle: %v", err)
	}

	if err := imp.Start(ctx, "wells.geojson", doc, ""); err != nil {
		t.Fatal(err)
	}
	if imp.State() != StateReady {
		t.Fatalf("state = %s", imp.State())
	}
	if err := imp.Start(ctx, "wells.geojson", doc, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start from ready: %v", err)
	}

	fc, err := imp.Confirm("   ")
	if err != nil {
		t.Fatal(err)
	}
	if fc.Name != "wells" || fc.Features[0].Properties.String(FilenameProperty) != "wells" {
		t.Errorf("confirmed %+v", fc)
	}
	if imp.State() != StateCommitted {
		t.Fatalf("state = %s", imp.State())
	}
	if got, ok := imp.Committed(); !ok || got.Name != "wells" {
		t.Errorf("Committed() = %+v, %v", got, ok)
	}

	if err := imp.Start(ctx, "broken.geojson", []byte("{"), ""); !errors.Is(err, ErrMalformed) {
		t.Fatalf("start: %v", err)
	}
	if imp.State() != StateFailed {
		t.Fatalf("state = %s", imp.State())
	}
	if _, err := imp.Result(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("result: %v", err)
	}
	if err := imp.Decline(); err != nil || imp.State() != StateIdle {
		t.Fatalf("decline: %v, state %s", err, imp.State())
	}

	if err := imp.Start(ctx, "wells.geojson", doc, ""); err != nil {
		t.Fatal(err)
	}
	fc, err = imp.Confirm("Puits")
	if err != nil {
		t.Fatal(err)
	}
	if fc.Name != "Puits" || fc.Features[0].Properties.String(FilenameProperty) != "Puits" {
		t.Errorf("confirmed %+v", fc)
	}
}

func TestImportBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.geojson")
	bad := filepath.Join(dir, "bad.kml")
	missing := filepath.Join(dir, "missing.gpx")

	if err := os.WriteFile(good, []byte(`[{"type":"Feature","geometry":{"type":"Point","coordinates":[-6,33]},"properties":{}}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("<kml>"), 0o600); err != nil {
		t.Fatal(err)
	}

	results := newTestImporter().ImportBatch(context.Background(), []string{good, bad, missing}, "", 2)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Path != good || results[0].Err != nil || results[0].Result == nil {
		t.Errorf("good = %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrMalformed) {
		t.Errorf("bad = %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, os.ErrNotExist) {
		t.Errorf("missing = %v", results[2].Err)
	}
}
