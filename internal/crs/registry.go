package crs

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// Registry is a read-only set of CRS definitions keyed by identifier.
// It is built once and passed explicitly to every component that needs it.
type Registry struct {
	defs map[string]CRS
	ids  []string
}

// NewRegistry validates the definitions and freezes them into a registry.
// The geodetic frame is always present, a definition with the same ID overrides it.
func NewRegistry(defs ...CRS) (*Registry, error) {
	r := &Registry{defs: make(map[string]CRS, len(defs)+1)}
	r.defs[GeodeticID] = geodetic

	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		d.ID = Normalize(d.ID)
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("invalid crs definition: %w", err)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate crs definition %q", d.ID)
		}
		seen[d.ID] = true
		r.defs[d.ID] = d
	}

	for id := range r.defs {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	return r, nil
}

// Default returns a registry with the geodetic frame and the four built-in Lambert zones.
func Default() *Registry {
	r, err := NewRegistry(BuiltinZones()...)
	if err != nil {
		panic(err) // built-in definitions are static
	}
	return r
}

// Lookup returns the definition for id, or ErrUnknownCRS.
func (r *Registry) Lookup(id string) (CRS, error) {
	if c, ok := r.defs[Normalize(id)]; ok {
		return c, nil
	}
	return CRS{}, fmt.Errorf("%w: %q", ErrUnknownCRS, id)
}

// Geodetic returns the geodetic frame definition.
func (r *Registry) Geodetic() CRS {
	return r.defs[GeodeticID]
}

// IDs returns all identifiers in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// All returns all definitions in identifier order.
func (r *Registry) All() []CRS {
	out := make([]CRS, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.defs[id])
	}
	return out
}

// ZoneFor returns the projected CRS whose valid area contains the geodetic position.
func (r *Registry) ZoneFor(lon, lat float64) (CRS, bool) {
	for _, id := range r.ids {
		c := r.defs[id]
		if c.IsGeodetic() {
			continue
		}
		if c.Contains(lon, lat) {
			return c, true
		}
	}
	return CRS{}, false
}

// Normalize canonicalizes an identifier: trims, upper-cases the authority
// and prefixes bare numeric codes with "EPSG:".
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	if strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
		return "EPSG:" + id
	}
	if i := strings.IndexByte(id, ':'); i > 0 {
		return strings.ToUpper(id[:i]) + id[i:]
	}
	return strings.ToUpper(id)
}

// definition is the YAML shape of an extra CRS, with the area as
// [min_lon, min_lat, max_lon, max_lat].
type definition struct {
	CRS  `yaml:",inline"`
	Area []float64 `yaml:"area"`
}

// LoadDefinitions reads additional CRS definitions from a YAML file
// holding a list of definitions.
func LoadDefinitions(path string) ([]CRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []definition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	defs := make([]CRS, 0, len(raw))
	for _, d := range raw {
		c := d.CRS
		switch len(d.Area) {
		case 0:
		case 4:
			c.Area = orb.Bound{Min: orb.Point{d.Area[0], d.Area[1]}, Max: orb.Point{d.Area[2], d.Area[3]}}
		default:
			return nil, fmt.Errorf("%s: area must have 4 values, got %d", c.ID, len(d.Area))
		}
		defs = append(defs, c)
	}

	return defs, nil
}
