// Package geo holds the in-memory feature model, the geometry normalizer
// and the planar metrics used across importers, the editor and exporters.
package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind is the closed set of geometry kinds the feature model carries.
type Kind string

// Supported geometry kinds.
const (
	KindPoint      Kind = "Point"
	KindMultiPoint Kind = "MultiPoint"
	KindLineString Kind = "LineString"
	KindPolygon    Kind = "Polygon"
)

// KindOf returns the kind of g, or false for anything outside the supported set.
func KindOf(g orb.Geometry) (Kind, bool) {
	switch g.(type) {
	case orb.Point:
		return KindPoint, true
	case orb.MultiPoint:
		return KindMultiPoint, true
	case orb.LineString:
		return KindLineString, true
	case orb.Polygon:
		return KindPolygon, true
	default:
		return "", false
	}
}

// CloneGeometry returns a deep copy of a supported geometry, or nil.
func CloneGeometry(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		return g
	case orb.MultiPoint:
		return g.Clone()
	case orb.LineString:
		return g.Clone()
	case orb.Polygon:
		return g.Clone()
	case orb.Ring:
		return g.Clone()
	default:
		return nil
	}
}

// FeatureCollection represents an ordered collection of features in a single CRS.
type FeatureCollection struct {
	Name     string
	CRS      string
	Features []Feature
}

// Feature represents a single geometry with its properties.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties Properties
}

// Clone returns a deep copy of the feature.
func (f Feature) Clone() Feature {
	return Feature{
		ID:         f.ID,
		Geometry:   CloneGeometry(f.Geometry),
		Properties: f.Properties.Clone(),
	}
}

// Clone returns a deep copy of the collection.
func (fc FeatureCollection) Clone() FeatureCollection {
	out := FeatureCollection{Name: fc.Name, CRS: fc.CRS}
	if fc.Features != nil {
		out.Features = make([]Feature, len(fc.Features))
		for i, f := range fc.Features {
			out.Features[i] = f.Clone()
		}
	}
	return out
}

// Index returns the position of the feature with the given ID, or -1.
func (fc FeatureCollection) Index(id string) int {
	for i := range fc.Features {
		if fc.Features[i].ID == id {
			return i
		}
	}
	return -1
}

type featureJSON struct {
	Type       string            `json:"type"`
	ID         json.RawMessage   `json:"id,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties Properties        `json:"properties"`
}

// MarshalJSON encodes the feature as a GeoJSON Feature.
func (f Feature) MarshalJSON() ([]byte, error) {
	out := featureJSON{Type: "Feature", Properties: f.Properties}
	if f.ID != "" {
		id, err := json.Marshal(f.ID)
		if err != nil {
			return nil, err
		}
		out.ID = id
	}
	if f.Geometry != nil {
		out.Geometry = geojson.NewGeometry(f.Geometry)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a GeoJSON Feature. Numeric identifiers are kept as their decimal text.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw featureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != "Feature" {
		return fmt.Errorf("unexpected type %q, want Feature", raw.Type)
	}

	*f = Feature{Properties: raw.Properties}

	if len(raw.ID) > 0 && !bytes.Equal(raw.ID, []byte("null")) {
		var s string
		if err := json.Unmarshal(raw.ID, &s); err != nil {
			var n json.Number
			if err := json.Unmarshal(raw.ID, &n); err != nil {
				return fmt.Errorf("invalid feature id: %s", raw.ID)
			}
			s = n.String()
		}
		f.ID = s
	}

	if raw.Geometry != nil {
		f.Geometry = raw.Geometry.Geometry()
	}

	return nil
}

type collectionJSON struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	CRS      string    `json:"crs,omitempty"`
	Features []Feature `json:"features"`
}

// MarshalJSON encodes the collection as a GeoJSON FeatureCollection.
// This is the persisted form, reloaded by the GeoJSON importer.
func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	features := fc.Features
	if features == nil {
		features = []Feature{}
	}
	return json.Marshal(collectionJSON{
		Type:     "FeatureCollection",
		Name:     fc.Name,
		CRS:      fc.CRS,
		Features: features,
	})
}

// ErrNoFeatures is returned when a document has no features array.
var ErrNoFeatures = errors.New("missing features array")

// UnmarshalJSON decodes a FeatureCollection object or a bare array of features.
// The crs member is only honoured in its plain string form.
func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var features []Feature
		if err := json.Unmarshal(data, &features); err != nil {
			return err
		}
		*fc = FeatureCollection{Features: features}
		return nil
	}

	var raw struct {
		Name     string          `json:"name"`
		CRS      json.RawMessage `json:"crs"`
		Features *[]Feature      `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Features == nil {
		return ErrNoFeatures
	}

	*fc = FeatureCollection{Name: raw.Name, Features: *raw.Features}
	if len(raw.CRS) > 0 {
		var s string
		if json.Unmarshal(raw.CRS, &s) == nil {
			fc.CRS = s
		}
	}
	return nil
}

// Properties is an ordered name to value map. Values are strings, numbers,
// booleans, nil, or nested JSON values.
type Properties struct {
	keys   []string
	values map[string]interface{}
}

// NewProperties builds properties from alternating key, value pairs.
func NewProperties(kv ...interface{}) Properties {
	var p Properties
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		p.Set(k, kv[i+1])
	}
	return p
}

// Set adds or replaces a value, keeping the original position of existing keys.
func (p *Properties) Set(key string, value interface{}) {
	if p.values == nil {
		p.values = make(map[string]interface{})
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for key.
func (p Properties) Get(key string) (interface{}, bool) {
	v, ok := p.values[key]
	return v, ok
}

// String returns the value for key formatted as text, or "".
func (p Properties) String(key string) string {
	v, ok := p.values[key]
	if !ok || v == nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Keys returns the keys in insertion order.
func (p Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of properties.
func (p Properties) Len() int {
	return len(p.keys)
}

// Clone returns a copy. Nested values are shared.
func (p Properties) Clone() Properties {
	if p.keys == nil {
		return Properties{}
	}
	out := Properties{
		keys:   append([]string(nil), p.keys...),
		values: make(map[string]interface{}, len(p.values)),
	}
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON encodes the properties as an object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping document order. null yields empty properties.
func (p *Properties) UnmarshalJSON(data []byte) error {
	*p = Properties{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties must be an object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid property key %v", tok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		p.Set(key, v)
	}

	_, err = dec.Token()
	return err
}
