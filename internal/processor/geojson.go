package processor

import (
	"encoding/json"
	"errors"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/reproject"
)

// parseGeoJSON reads a FeatureCollection object or a bare feature array.
// A string "crs" member naming a registered projected CRS is reprojected;
// otherwise coordinates are taken as geodetic.
func parseGeoJSON(data []byte, opts parseOptions) (parsed, error) {
	var fc geo.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return parsed{}, malformed("geojson: %v", err)
	}

	out := parsed{fc: fc}
	if len(fc.Features) == 0 {
		return parsed{}, empty("geojson has no features")
	}

	if fc.CRS == "" || crs.Normalize(fc.CRS) == crs.GeodeticID {
		return out, nil
	}

	opts.crs = fc.CRS
	src, warning := opts.source()
	if warning != "" {
		out.warnings = append(out.warnings, warning)
	}
	if src == "" {
		return out, nil
	}

	features := make([]geo.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		g, err := opts.engine.TransformGeometry(f.Geometry, src, crs.GeodeticID)
		switch {
		case errors.Is(err, reproject.ErrUnsupportedGeometry):
			// kept as is for the normalizer to drop and count
		case err != nil:
			out.dropped++
			continue
		default:
			f.Geometry = g
		}
		features = append(features, f)
	}
	out.fc.Features = features

	return out, nil
}
