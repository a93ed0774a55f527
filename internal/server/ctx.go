package server

import (
	"github.com/woozymasta/geodraft/internal/config"
	"github.com/woozymasta/geodraft/internal/crs"
	"github.com/woozymasta/geodraft/internal/processor"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config   *config.Config
	Registry *crs.Registry
	Engine   *reproject.Engine
	Importer *processor.Importer
	Exporter *processor.Exporter
}

// NewServerContext builds the CRS registry, loading extra definitions when
// configured, and the import and export pipelines on top of it.
func NewServerContext(cfg *config.Config) (*ServerContext, error) {
	defs := crs.BuiltinZones()
	if cfg.CRSDefinitions != "" {
		extra, err := crs.LoadDefinitions(cfg.CRSDefinitions)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("path", cfg.CRSDefinitions).
			Int("count", len(extra)).
			Msg("Extra CRS definitions loaded")
		defs = append(defs, extra...)
	}

	reg, err := crs.NewRegistry(defs...)
	if err != nil {
		return nil, err
	}

	if _, err := reg.Lookup(cfg.DefaultCRS); err != nil {
		log.Warn().Err(err).Msg("Default CRS is not registered, DXF coordinates will be read as geodetic")
	}

	engine := reproject.New(reg)

	log.Info().
		Strs("crs", reg.IDs()).
		Str("default_crs", cfg.DefaultCRS).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:   cfg,
		Registry: reg,
		Engine:   engine,
		Importer: processor.NewImporter(engine, cfg.DefaultCRS),
		Exporter: processor.NewExporter(engine, processor.ExportOptions{
			Minify: cfg.Export.Minify,
			DXFCRS: cfg.Export.DXFCRS,
		}),
	}, nil
}
