package processor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"
	mxml "github.com/tdewolff/minify/v2/xml"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/entity"
)

// ExportOptions configures an Exporter.
type ExportOptions struct {
	// Minify strips whitespace from GeoJSON, GPX and KML output.
	Minify bool
	// DXFCRS is the projected CRS drawings are written in. Empty picks the
	// zone containing the collection centre.
	DXFCRS string
}

// Exporter writes normalized collections to interchange formats.
type Exporter struct {
	engine   *reproject.Engine
	opts     ExportOptions
	minifier *minify.M
}

// NewExporter creates an exporter.
func NewExporter(engine *reproject.Engine, opts ExportOptions) *Exporter {
	m := minify.New()
	m.AddFunc("application/geo+json", mjson.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`[/+]xml$`), mxml.Minify)

	return &Exporter{engine: engine, opts: opts, minifier: m}
}

// WithDXFCRS returns an exporter sharing x's minifier that writes drawings
// in the given CRS. An empty id returns x.
func (x *Exporter) WithDXFCRS(id string) *Exporter {
	if id == "" {
		return x
	}
	out := *x
	out.opts.DXFCRS = id
	return &out
}

// Export encodes a geodetic collection in the given format.
func (x *Exporter) Export(fc geo.FeatureCollection, format Format) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch format {
	case FormatGeoJSON:
		out, err = json.MarshalIndent(fc, "", "  ")
	case FormatGPX:
		out, err = writeGPX(fc)
	case FormatKML:
		out, err = writeKML(fc)
	case FormatDXF:
		return x.writeDXF(fc)
	default:
		return nil, &ParseError{Reason: ReasonUnsupportedFormat, Err: fmt.Errorf("cannot export %q", format)}
	}
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	if x.opts.Minify {
		small, err := x.minifier.Bytes(format.ContentType(), out)
		if err != nil {
			return nil, fmt.Errorf("minify %s: %w", format, err)
		}
		out = small
	}

	return out, nil
}

// WriteFile exports the collection and writes it to path, creating parent directories.
func (x *Exporter) WriteFile(path string, fc geo.FeatureCollection, format Format) error {
	data, err := x.Export(fc, format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	_, err = f.Write(data)
	return err
}

// DXFZone returns the projected CRS a drawing of fc is written in.
func (x *Exporter) DXFZone(fc geo.FeatureCollection) (crs.CRS, error) {
	reg := x.engine.Registry()
	if x.opts.DXFCRS != "" {
		return reg.Lookup(x.opts.DXFCRS)
	}

	b, ok := geo.BoundsOf(fc)
	if !ok {
		return crs.CRS{}, geo.ErrEmptyGeometry
	}
	c := b.Bound().Center()
	zone, ok := reg.ZoneFor(c[0], c[1])
	if !ok {
		return crs.CRS{}, fmt.Errorf("%w: no projected zone covers %.5f, %.5f", crs.ErrUnknownCRS, c[1], c[0])
	}
	return zone, nil
}

// writeDXF projects the collection into a Lambert zone and writes points
// as POINT and lines and polygon rings as LWPOLYLINE, one layer per source layer.
func (x *Exporter) writeDXF(fc geo.FeatureCollection) ([]byte, error) {
	zone, err := x.DXFZone(fc)
	if err != nil {
		return nil, err
	}

	d := dxf.NewDrawing()
	d.Header().LtScale = 1.0

	layers := map[string]bool{"0": true}
	palette := []color.ColorNumber{color.Red, color.Yellow, color.Green, color.Cyan, color.Blue, color.Magenta}

	for _, f := range fc.Features {
		g, err := x.engine.TransformGeometry(f.Geometry, crs.GeodeticID, zone.ID)
		if err != nil {
			log.Warn().Err(err).Str("feature", f.ID).Msg("Feature skipped in DXF export")
			continue
		}

		layer := f.Properties.String("layer")
		if layer == "" {
			layer = "0"
		}
		if !layers[layer] {
			if _, err := d.AddLayer(layer, palette[(len(layers)-1)%len(palette)], dxf.DefaultLineType, true); err != nil {
				return nil, fmt.Errorf("dxf layer %q: %w", layer, err)
			}
			layers[layer] = true
		}
		if err := d.ChangeLayer(layer); err != nil {
			return nil, fmt.Errorf("dxf layer %q: %w", layer, err)
		}

		switch g := g.(type) {
		case orb.Point:
			if _, err := d.Point(g[0], g[1], 0); err != nil {
				return nil, err
			}
		case orb.MultiPoint:
			for _, p := range g {
				if _, err := d.Point(p[0], p[1], 0); err != nil {
					return nil, err
				}
			}
		case orb.LineString:
			d.AddEntity(lwPolyline(g, false))
		case orb.Polygon:
			for _, ring := range g {
				d.AddEntity(lwPolyline(ring, true))
			}
		}
	}

	// the drawing can only be serialized to a file
	tmp, err := os.CreateTemp("", "geodraft-*.dxf")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(path) }()

	if err := d.SaveAs(path); err != nil {
		return nil, fmt.Errorf("write dxf: %w", err)
	}

	log.Debug().Str("crs", zone.ID).Int("features", len(fc.Features)).Msg("DXF drawing written")

	return os.ReadFile(path)
}

// lwPolyline builds a polyline; a closed ring drops its repeated last vertex
// and sets the closed flag instead.
func lwPolyline(pts []orb.Point, closed bool) *entity.LwPolyline {
	if closed && geo.IsRingClosed(pts) {
		pts = pts[:len(pts)-1]
	}
	lwp := entity.NewLwPolyline(len(pts))
	for i, p := range pts {
		lwp.Vertices[i] = []float64{p[0], p[1]}
	}
	if closed {
		lwp.Close()
	}
	return lwp
}

// featureName picks a display name from common property keys, falling back to the ID or position.
func featureName(f geo.Feature, index int) string {
	for _, key := range []string{"name", "Name", "NAME", "title", "label", "layer"} {
		if v := f.Properties.String(key); v != "" {
			return v
		}
	}
	if f.ID != "" {
		return f.ID
	}
	return "Feature " + strconv.Itoa(index+1)
}
