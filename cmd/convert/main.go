package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/geodraft/internal/config"
	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/logger"
	"github.com/woozymasta/geodraft/internal/processor"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string `short:"c" long:"config"      env:"CONFIG_FILE"  description:"Path to configuration file, built-in defaults when empty"`
	CRS         string `short:"s" long:"crs"         env:"SOURCE_CRS"   description:"Source CRS of DXF drawings (overrides config)"`
	Format      string `short:"f" long:"format"      env:"FORMAT"       description:"Output format" choice:"geojson" choice:"gpx" choice:"kml" choice:"dxf" default:"geojson"`
	Out         string `short:"o" long:"out"         env:"OUT_DIR"      description:"Output directory" default:"."`
	Concurrency int    `short:"p" long:"concurrency" env:"CONCURRENCY"  description:"Files imported in parallel (overrides config)"`
	DXFCRS      string `short:"z" long:"dxf-crs"     env:"DXF_CRS"      description:"Zone DXF output is written in, picked from the data when empty"`
	Minify      bool   `short:"m" long:"minify"      description:"Minify GeoJSON, GPX and KML output"`

	Args struct {
		Sources []string `positional-arg-name:"source" description:"Files or http(s) URLs to convert" required:"1"`
	} `positional-args:"yes"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
	}
	if opts.CRS != "" {
		cfg.DefaultCRS = opts.CRS
	}
	if opts.Concurrency > 0 {
		cfg.Import.Workers = opts.Concurrency
	}
	if opts.DXFCRS != "" {
		cfg.Export.DXFCRS = opts.DXFCRS
	}
	cfg.Export.Minify = cfg.Export.Minify || opts.Minify

	format, err := processor.ParseFormat(opts.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output format")
	}

	defs := crs.BuiltinZones()
	if cfg.CRSDefinitions != "" {
		extra, err := crs.LoadDefinitions(cfg.CRSDefinitions)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load CRS definitions")
		}
		defs = append(defs, extra...)
	}
	reg, err := crs.NewRegistry(defs...)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid CRS definitions")
	}

	engine := reproject.New(reg)
	importer := processor.NewImporter(engine, cfg.DefaultCRS)
	exporter := processor.NewExporter(engine, processor.ExportOptions{
		Minify: cfg.Export.Minify,
		DXFCRS: cfg.Export.DXFCRS,
	})

	var local, remote []string
	for _, src := range opts.Args.Sources {
		if processor.IsRemote(src) {
			remote = append(remote, src)
		} else {
			local = append(local, src)
		}
	}

	log.Info().
		Int("local", len(local)).
		Int("remote", len(remote)).
		Str("format", string(format)).
		Str("crs", cfg.DefaultCRS).
		Msg("Starting conversion")

	ctx := context.Background()
	results := importer.ImportBatch(ctx, local, cfg.DefaultCRS, cfg.Import.Workers)

	client := &http.Client{Timeout: cfg.Import.Timeout}
	for _, src := range remote {
		results = append(results, importRemote(ctx, client, importer, src, cfg))
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}

		logMetrics(engine, r)

		path := filepath.Join(opts.Out, r.Result.Name+format.Ext())
		if err := exporter.WriteFile(path, r.Result.Collection, format); err != nil {
			log.Error().Err(err).Str("source", r.Path).Str("path", path).Msg("Failed to write output")
			failed++
			continue
		}

		log.Info().
			Str("source", r.Path).
			Str("path", path).
			Int("features", len(r.Result.Collection.Features)).
			Int("dropped", r.Result.Dropped).
			Strs("warnings", r.Result.Warnings).
			Msg("File converted")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Int("total", len(results)).Msg("Conversion finished with errors")
	}
	log.Info().Int("total", len(results)).Msg("Conversion finished successfully")
}

func importRemote(ctx context.Context, client *http.Client, im *processor.Importer, src string, cfg *config.Config) processor.BatchResult {
	ctx, cancel := context.WithTimeout(ctx, cfg.Import.Timeout)
	defer cancel()

	start := time.Now()
	filename, data, err := processor.Fetch(ctx, client, src, cfg.Import.MaxSize)
	if err != nil {
		log.Error().Err(err).Str("url", src).Msg("Failed to download file")
		return processor.BatchResult{Path: src, Err: err}
	}
	log.Debug().Str("url", src).Int("bytes", len(data)).Dur("duration", time.Since(start)).Msg("File downloaded")

	res, err := im.Import(ctx, filename, data, cfg.DefaultCRS)
	if err != nil {
		log.Error().Err(err).Str("url", src).Msg("Failed to import file")
	}
	return processor.BatchResult{Path: src, Result: res, Err: err}
}

// logMetrics reports total length and area of the imported shapes, measured
// in the projected zone covering them.
func logMetrics(engine *reproject.Engine, r processor.BatchResult) {
	c := r.Result.Bounds.Bound().Center()
	zone, ok := engine.Registry().ZoneFor(c[0], c[1])
	if !ok {
		log.Debug().Str("source", r.Path).Msg("No projected zone covers the file, metrics skipped")
		return
	}

	var total geo.Metrics
	for _, f := range r.Result.Collection.Features {
		g, err := engine.TransformGeometry(f.Geometry, crs.GeodeticID, zone.ID)
		if err != nil {
			continue
		}
		m := geo.Measure(g)
		total.Perimeter += m.Perimeter
		total.Area += m.Area
	}

	log.Info().
		Str("source", r.Path).
		Str("crs", zone.ID).
		Float64("length_m", total.Perimeter).
		Float64("area_m2", total.Area).
		Msg("File metrics")
}
