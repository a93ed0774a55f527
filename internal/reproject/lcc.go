package reproject

import (
	"math"

	"github.com/woozymasta/geodraft/internal/crs"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// iteration limit and tolerance (radians) for latitude series
	maxIter = 15
	epsLat  = 1e-12
)

// lcc holds the derived constants of a Lambert conformal conic (2SP) projection.
type lcc struct {
	a, e, e2 float64
	n, aF    float64
	rho0     float64
	lon0     float64
	fe, fn   float64
}

func newLCC(c crs.CRS) *lcc {
	p := &lcc{
		a:    c.Ellipsoid.A,
		e2:   c.Ellipsoid.E2(),
		lon0: c.OriginLon * deg2rad,
		fe:   c.FalseEasting,
		fn:   c.FalseNorthing,
	}
	p.e = math.Sqrt(p.e2)

	phi1 := c.StdParallel1 * deg2rad
	phi2 := c.StdParallel2 * deg2rad
	phi0 := c.OriginLat * deg2rad

	m1, m2 := p.m(phi1), p.m(phi2)
	t1, t2, t0 := p.t(phi1), p.t(phi2), p.t(phi0)

	if math.Abs(phi1-phi2) > epsLat {
		p.n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	} else {
		p.n = math.Sin(phi1)
	}

	p.aF = p.a * m1 / (p.n * math.Pow(t1, p.n))
	p.rho0 = p.rho(t0)

	return p
}

func (p *lcc) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e2*s*s)
}

func (p *lcc) t(phi float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-p.e*s)/(1+p.e*s), p.e/2)
}

func (p *lcc) rho(t float64) float64 {
	if t == 0 {
		return 0
	}
	return p.aF * math.Pow(t, p.n)
}

// forward projects geodetic lon/lat (degrees) on the projection ellipsoid to easting/northing.
func (p *lcc) forward(lon, lat float64) (x, y float64) {
	phi := lat * deg2rad
	theta := p.n * adjustLon(lon*deg2rad-p.lon0)
	rho := p.rho(p.t(phi))

	x = p.fe + rho*math.Sin(theta)
	y = p.fn + p.rho0 - rho*math.Cos(theta)
	return x, y
}

// inverse returns geodetic lon/lat (degrees) for easting/northing.
func (p *lcc) inverse(x, y float64) (lon, lat float64) {
	dx := x - p.fe
	dy := p.rho0 - (y - p.fn)

	rho := math.Hypot(dx, dy)
	if p.n < 0 {
		rho, dx, dy = -rho, -dx, -dy
	}

	theta := math.Atan2(dx, dy)
	lon = adjustLon(theta/p.n+p.lon0) * rad2deg

	if rho == 0 {
		return lon, math.Copysign(90, p.n)
	}

	t := math.Pow(rho/p.aF, 1/p.n)
	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < maxIter; i++ {
		s := math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-p.e*s)/(1+p.e*s), p.e/2))
		if math.Abs(next-phi) < epsLat {
			phi = next
			break
		}
		phi = next
	}

	return lon, phi * rad2deg
}

// adjustLon wraps a longitude in radians into [-pi, pi].
func adjustLon(x float64) float64 {
	if math.Abs(x) <= math.Pi {
		return x
	}
	return x - 2*math.Pi*math.Floor((x+math.Pi)/(2*math.Pi))
}
