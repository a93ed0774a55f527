package geo

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		pts  []orb.Point
		want float64
	}{
		{name: "empty", pts: nil, want: 0},
		{name: "single", pts: []orb.Point{{1, 1}}, want: 0},
		{name: "3-4-5", pts: []orb.Point{{0, 0}, {3, 4}}, want: 5},
		{name: "polyline", pts: []orb.Point{{0, 0}, {1, 0}, {1, 1}}, want: 2},
		{name: "nan skipped", pts: []orb.Point{{0, 0}, {math.NaN(), 1}, {3, 4}, {3, 5}}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.pts); !almost(got, tt.want) {
				t.Errorf("Distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolygonMetrics(t *testing.T) {
	square := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	reversed := []orb.Point{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	closed := append(append([]orb.Point{}, square...), orb.Point{0, 0})

	tests := []struct {
		name string
		ring []orb.Point
		want Metrics
	}{
		{name: "unit square", ring: square, want: Metrics{Perimeter: 4, Area: 1}},
		{name: "reversed", ring: reversed, want: Metrics{Perimeter: 4, Area: 1}},
		{name: "explicitly closed", ring: closed, want: Metrics{Perimeter: 4, Area: 1}},
		{name: "two points", ring: []orb.Point{{0, 0}, {1, 1}}, want: Metrics{}},
		{name: "triangle", ring: []orb.Point{{0, 0}, {4, 0}, {0, 3}}, want: Metrics{Perimeter: 12, Area: 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PolygonMetrics(tt.ring)
			if !almost(got.Perimeter, tt.want.Perimeter) || !almost(got.Area, tt.want.Area) {
				t.Errorf("PolygonMetrics = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMeasurePolygonWithHole(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	}
	m := Measure(poly)
	if !almost(m.Area, 96) || !almost(m.Perimeter, 40) {
		t.Fatalf("Measure = %+v", m)
	}
}

func TestGeodesicLength(t *testing.T) {
	// one degree of longitude on the equator
	got := GeodesicLength([]orb.Point{{0, 0}, {1, 0}})
	if got < 111000 || got > 111400 {
		t.Fatalf("GeodesicLength = %v", got)
	}
}

func TestRingClosure(t *testing.T) {
	open := orb.Ring{{0, 0}, {1, 0}, {1, 1}}
	closed := CloseRing(open)

	if len(open) != 3 {
		t.Fatal("CloseRing modified its input")
	}
	if len(closed) != 4 || closed[3] != closed[0] {
		t.Fatalf("CloseRing = %v", closed)
	}
	if again := CloseRing(closed); len(again) != 4 {
		t.Fatalf("CloseRing appended to a closed ring: %v", again)
	}

	nearly := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 5e-7}}
	if !IsRingClosed(nearly) {
		t.Error("ring within tolerance not considered closed")
	}
	if IsRingClosed(orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 2e-6}}) {
		t.Error("ring outside tolerance considered closed")
	}
}

func TestNormalize(t *testing.T) {
	in := FeatureCollection{
		Name: "parcels",
		Features: []Feature{
			{ID: "keep", Geometry: orb.Polygon{{{-6, 33}, {-5.9, 33}, {-5.9, 33.1}}}, Properties: NewProperties("layer", "0")},
			{Geometry: orb.Point{-6.5, 34}},
			{ID: "short", Geometry: orb.LineString{{-6, 33}}},
			{ID: "flat", Geometry: orb.Polygon{{{-6, 33}, {-6, 33}, {-5, 33}}}},
			{ID: "multi", Geometry: orb.MultiLineString{{{0, 0}, {1, 1}}}},
			{ID: "nil"},
		},
	}

	res, err := NormalizeCounted(in)
	if err != nil {
		t.Fatal(err)
	}
	out := res.Collection

	if res.Dropped != 4 {
		t.Errorf("Dropped = %d, want 4", res.Dropped)
	}
	if len(out.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(out.Features))
	}
	if out.CRS != GeodeticCRS {
		t.Errorf("CRS = %q", out.CRS)
	}

	poly := out.Features[0].Geometry.(orb.Polygon)
	if len(poly[0]) != 4 || !IsRingClosed(poly[0]) {
		t.Errorf("ring not closed: %v", poly[0])
	}
	if len(in.Features[0].Geometry.(orb.Polygon)[0]) != 3 {
		t.Error("input ring modified")
	}
	if out.Features[1].ID == "" {
		t.Error("missing id not assigned")
	}
	if out.Features[0].Properties.String("layer") != "0" {
		t.Error("properties lost")
	}

	want := Bounds{SouthWest: orb.Point{-6.5, 33}, NorthEast: orb.Point{-5.9, 34}}
	if res.Bounds != want {
		t.Errorf("Bounds = %+v, want %+v", res.Bounds, want)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, _, err := Normalize(FeatureCollection{Features: []Feature{{Geometry: orb.LineString{}}}})
	if !errors.Is(err, ErrEmptyGeometry) {
		t.Fatalf("err = %v, want ErrEmptyGeometry", err)
	}
}

func TestBoundsJSON(t *testing.T) {
	b := Bounds{SouthWest: orb.Point{-6.5, 33}, NorthEast: orb.Point{-5.9, 34}}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[[33,-6.5],[34,-5.9]]" {
		t.Fatalf("got %s", data)
	}
}

func TestCollectionJSON(t *testing.T) {
	doc := `{"type":"FeatureCollection","name":"roads","features":[
		{"type":"Feature","id":7,"geometry":{"type":"LineString","coordinates":[[-6,33],[-5.9,33.1]]},
		 "properties":{"zeta":1,"alpha":"a","mid":null}}
	]}`

	var fc FeatureCollection
	if err := json.Unmarshal([]byte(doc), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Name != "roads" || len(fc.Features) != 1 {
		t.Fatalf("decoded %+v", fc)
	}
	f := fc.Features[0]
	if f.ID != "7" {
		t.Errorf("ID = %q", f.ID)
	}
	if keys := strings.Join(f.Properties.Keys(), ","); keys != "zeta,alpha,mid" {
		t.Errorf("keys = %s", keys)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"properties":{"zeta":1,"alpha":"a","mid":null}`) {
		t.Errorf("property order lost: %s", data)
	}

	var again FeatureCollection
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatal(err)
	}
	if _, ok := again.Features[0].Geometry.(orb.LineString); !ok {
		t.Errorf("geometry = %T", again.Features[0].Geometry)
	}
}

func TestCollectionJSONErrors(t *testing.T) {
	var fc FeatureCollection
	if err := json.Unmarshal([]byte(`{"type":"FeatureCollection"}`), &fc); !errors.Is(err, ErrNoFeatures) {
		t.Errorf("missing features: %v", err)
	}
	if err := json.Unmarshal([]byte(`[{"type":"Feature","geometry":null,"properties":{}}]`), &fc); err != nil {
		t.Errorf("bare array: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Geometry != nil {
		t.Errorf("bare array decoded %+v", fc)
	}
}
