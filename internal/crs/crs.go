// Package crs holds coordinate reference system definitions and the read-only registry
// used to look them up by identifier.
package crs

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrUnknownCRS is returned when an identifier is not present in the registry.
var ErrUnknownCRS = errors.New("unknown coordinate reference system")

// GeodeticID is the identifier of the geodetic reference frame every
// normalized collection is expressed in.
const GeodeticID = "EPSG:4326"

// Family tags the projection formula of a CRS.
type Family string

const (
	// FamilyGeodetic is longitude/latitude in degrees, no projection.
	FamilyGeodetic Family = "geodetic"
	// FamilyLCC is the two standard parallel Lambert conformal conic projection.
	FamilyLCC Family = "lcc"
)

// Ellipsoid describes the reference ellipsoid by semi-major axis and inverse flattening.
type Ellipsoid struct {
	Name string  `yaml:"name" json:"name"`
	A    float64 `yaml:"a" json:"a"`
	InvF float64 `yaml:"inv_f" json:"inv_f"`
}

// F returns the flattening.
func (e Ellipsoid) F() float64 {
	if e.InvF == 0 {
		return 0
	}
	return 1 / e.InvF
}

// E2 returns the first eccentricity squared.
func (e Ellipsoid) E2() float64 {
	f := e.F()
	return 2*f - f*f
}

// Equal reports whether both ellipsoids have the same shape.
func (e Ellipsoid) Equal(o Ellipsoid) bool {
	return e.A == o.A && e.InvF == o.InvF
}

var (
	// WGS84 ellipsoid.
	WGS84 = Ellipsoid{Name: "WGS84", A: 6378137.0, InvF: 298.257223563}

	// Clarke1880IGN ellipsoid (a = 6378249.2, b = 6356515.0).
	Clarke1880IGN = Ellipsoid{Name: "clrk80ign", A: 6378249.2, InvF: 6378249.2 / (6378249.2 - 6356515.0)}
)

// CRS is an immutable coordinate reference system definition.
type CRS struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Family    Family    `yaml:"family" json:"family"`
	Ellipsoid Ellipsoid `yaml:"ellipsoid" json:"ellipsoid"`

	// Standard parallels and origin, in degrees.
	StdParallel1 float64 `yaml:"lat_1" json:"lat_1,omitempty"`
	StdParallel2 float64 `yaml:"lat_2" json:"lat_2,omitempty"`
	OriginLat    float64 `yaml:"lat_0" json:"lat_0,omitempty"`
	OriginLon    float64 `yaml:"lon_0" json:"lon_0,omitempty"`

	FalseEasting  float64 `yaml:"x_0" json:"x_0,omitempty"`
	FalseNorthing float64 `yaml:"y_0" json:"y_0,omitempty"`

	// ToWGS84 is dx, dy, dz (m), rx, ry, rz (arc-seconds), ds (ppm),
	// position vector convention, converting this datum to WGS84.
	ToWGS84 [7]float64 `yaml:"towgs84" json:"towgs84"`

	// Area is the geodetic region the definition is valid for.
	Area orb.Bound `yaml:"-" json:"-"`
}

// IsGeodetic reports whether coordinates in this CRS are longitude/latitude.
func (c CRS) IsGeodetic() bool {
	return c.Family == FamilyGeodetic
}

// HasDatumShift reports whether any Helmert parameter is non zero.
func (c CRS) HasDatumShift() bool {
	for _, v := range c.ToWGS84 {
		if v != 0 {
			return true
		}
	}
	return false
}

// Contains reports whether a geodetic position lies inside the valid area.
// A CRS without an area contains nothing.
func (c CRS) Contains(lon, lat float64) bool {
	if c.Area.IsZero() {
		return false
	}
	return c.Area.Contains(orb.Point{lon, lat})
}

func (c CRS) validate() error {
	if c.ID == "" {
		return errors.New("empty identifier")
	}
	if c.Ellipsoid.A <= 0 || math.IsNaN(c.Ellipsoid.A) {
		return fmt.Errorf("%s: invalid ellipsoid semi-major axis %v", c.ID, c.Ellipsoid.A)
	}
	if c.Ellipsoid.InvF < 0 {
		return fmt.Errorf("%s: invalid inverse flattening %v", c.ID, c.Ellipsoid.InvF)
	}

	switch c.Family {
	case FamilyGeodetic:
		return nil
	case FamilyLCC:
		if c.StdParallel1 == 0 && c.StdParallel2 == 0 {
			return fmt.Errorf("%s: lcc requires standard parallels", c.ID)
		}
		if c.StdParallel1 == -c.StdParallel2 {
			return fmt.Errorf("%s: standard parallels must not be symmetric around the equator", c.ID)
		}
		for _, v := range []float64{c.StdParallel1, c.StdParallel2, c.OriginLat} {
			if math.Abs(v) >= 90 {
				return fmt.Errorf("%s: latitude %v out of range", c.ID, v)
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported projection family %q", c.ID, c.Family)
	}
}
