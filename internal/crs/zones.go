package crs

import "github.com/paulmach/orb"

var geodetic = CRS{
	ID:        GeodeticID,
	Name:      "WGS 84",
	Family:    FamilyGeodetic,
	Ellipsoid: WGS84,
	Area:      orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
}

// Zone areas split the country along latitude bands so that each position
// falls in exactly one zone.
var (
	nordArea    = orb.Bound{Min: orb.Point{-13.5, 31.5}, Max: orb.Point{-1.0, 36.0}}
	sudArea     = orb.Bound{Min: orb.Point{-13.5, 27.9}, Max: orb.Point{-1.0, 31.5}}
	saharaArea  = orb.Bound{Min: orb.Point{-17.5, 24.3}, Max: orb.Point{-1.0, 27.9}}
	saharaSArea = orb.Bound{Min: orb.Point{-17.5, 20.7}, Max: orb.Point{-1.0, 24.3}}
)

// BuiltinZones returns the four Lambert conformal conic zones. Each zone keeps
// its own datum shift; they are not interchangeable.
func BuiltinZones() []CRS {
	return []CRS{
		{
			ID:            "EPSG:26191",
			Name:          "Merchich / Nord Maroc (Lambert zone 1)",
			Family:        FamilyLCC,
			Ellipsoid:     Clarke1880IGN,
			StdParallel1:  34.88,
			StdParallel2:  31.6,
			OriginLat:     33.3,
			OriginLon:     -5.4,
			FalseEasting:  500000,
			FalseNorthing: 300000,
			ToWGS84:       [7]float64{29, 145, 46},
			Area:          nordArea,
		},
		{
			ID:            "EPSG:26192",
			Name:          "Merchich / Sud Maroc (Lambert zone 2)",
			Family:        FamilyLCC,
			Ellipsoid:     Clarke1880IGN,
			StdParallel1:  31.4,
			StdParallel2:  28.1,
			OriginLat:     29.7,
			OriginLon:     -5.4,
			FalseEasting:  500000,
			FalseNorthing: 300000,
			ToWGS84:       [7]float64{30, 140, 50},
			Area:          sudArea,
		},
		{
			ID:            "EPSG:26194",
			Name:          "Merchich / Sahara Nord (Lambert zone 3)",
			Family:        FamilyLCC,
			Ellipsoid:     Clarke1880IGN,
			StdParallel1:  27.6,
			StdParallel2:  24.5,
			OriginLat:     26.1,
			OriginLon:     -5.4,
			FalseEasting:  1200000,
			FalseNorthing: 400000,
			ToWGS84:       [7]float64{31, 146, 47},
			Area:          saharaArea,
		},
		{
			ID:            "EPSG:26195",
			Name:          "Merchich / Sahara Sud (Lambert zone 4)",
			Family:        FamilyLCC,
			Ellipsoid:     Clarke1880IGN,
			StdParallel1:  24.1,
			StdParallel2:  20.9,
			OriginLat:     22.5,
			OriginLon:     -5.4,
			FalseEasting:  1500000,
			FalseNorthing: 400000,
			ToWGS84:       [7]float64{31, 146, 47},
			Area:          saharaSArea,
		},
	}
}
