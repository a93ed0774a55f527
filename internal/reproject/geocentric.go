package reproject

import (
	"math"

	"github.com/woozymasta/geodraft/internal/crs"
)

const arcsec2rad = math.Pi / (180 * 3600)

type vec3 [3]float64

// toGeocentric converts lon/lat (degrees) at zero height to earth-centred cartesian metres.
func toGeocentric(lon, lat float64, ell crs.Ellipsoid) vec3 {
	e2 := ell.E2()
	phi, lam := lat*deg2rad, lon*deg2rad
	sinPhi := math.Sin(phi)
	n := ell.A / math.Sqrt(1-e2*sinPhi*sinPhi)

	return vec3{
		n * math.Cos(phi) * math.Cos(lam),
		n * math.Cos(phi) * math.Sin(lam),
		n * (1 - e2) * sinPhi,
	}
}

// fromGeocentric converts cartesian metres to lon/lat (degrees); height is dropped.
func fromGeocentric(v vec3, ell crs.Ellipsoid) (lon, lat float64) {
	e2 := ell.E2()
	p := math.Hypot(v[0], v[1])
	lon = math.Atan2(v[1], v[0]) * rad2deg

	if p < 1e-9 {
		return lon, math.Copysign(90, v[2])
	}

	phi := math.Atan2(v[2], p*(1-e2))
	for i := 0; i < maxIter; i++ {
		s := math.Sin(phi)
		n := ell.A / math.Sqrt(1-e2*s*s)
		h := p/math.Cos(phi) - n
		next := math.Atan2(v[2], p*(1-e2*n/(n+h)))
		if math.Abs(next-phi) < epsLat {
			phi = next
			break
		}
		phi = next
	}

	return lon, phi * rad2deg
}

// helmert is a seven parameter similarity transform, position vector convention.
type helmert struct {
	t     vec3
	r     [3][3]float64 // (1+s) * rotation matrix
	ident bool
}

func newHelmert(p [7]float64) helmert {
	rx, ry, rz := p[3]*arcsec2rad, p[4]*arcsec2rad, p[5]*arcsec2rad
	k := 1 + p[6]*1e-6

	h := helmert{
		t: vec3{p[0], p[1], p[2]},
		r: [3][3]float64{
			{k, -k * rz, k * ry},
			{k * rz, k, -k * rx},
			{-k * ry, k * rx, k},
		},
	}
	h.ident = p == [7]float64{}

	return h
}

// forward maps source datum coordinates to WGS84.
func (h helmert) forward(v vec3) vec3 {
	if h.ident {
		return v
	}

	var out vec3
	for i := 0; i < 3; i++ {
		out[i] = h.t[i] + h.r[i][0]*v[0] + h.r[i][1]*v[1] + h.r[i][2]*v[2]
	}
	return out
}

// inverse maps WGS84 coordinates back to the source datum by solving the
// linear system exactly instead of negating the parameters.
func (h helmert) inverse(v vec3) vec3 {
	if h.ident {
		return v
	}

	b := vec3{v[0] - h.t[0], v[1] - h.t[1], v[2] - h.t[2]}
	m := h.r
	det := det3(m)

	var out vec3
	for col := 0; col < 3; col++ {
		mc := m
		for row := 0; row < 3; row++ {
			mc[row][col] = b[row]
		}
		out[col] = det3(mc) / det
	}
	return out
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
