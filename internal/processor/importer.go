package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/woozymasta/geodraft/internal/geo"
	"github.com/woozymasta/geodraft/internal/reproject"

	"github.com/rs/zerolog/log"
)

// ImportResult is a parsed and normalized file awaiting confirmation.
type ImportResult struct {
	Collection geo.FeatureCollection `json:"collection"`
	Bounds     geo.Bounds            `json:"bounds"`
	Name       string                `json:"name"`
	Format     Format                `json:"format"`
	Dropped    int                   `json:"dropped"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// Importer parses files into normalized collections.
type Importer struct {
	engine     *reproject.Engine
	defaultCRS string
}

// NewImporter creates an importer. defaultCRS is the source CRS of DXF
// drawings when the caller does not name one.
func NewImporter(engine *reproject.Engine, defaultCRS string) *Importer {
	return &Importer{engine: engine, defaultCRS: defaultCRS}
}

// Import parses and normalizes a file on a worker goroutine. When ctx is
// cancelled first, ctx.Err() is returned and the eventual result is discarded.
func (im *Importer) Import(ctx context.Context, filename string, data []byte, sourceCRS string) (*ImportResult, error) {
	format, err := FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		res *ImportResult
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := im.run(format, filename, data, sourceCRS)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Debug().Str("file", filename).Msg("Import cancelled")
		return nil, ctx.Err()
	case o := <-done:
		return o.res, o.err
	}
}

func (im *Importer) run(format Format, filename string, data []byte, sourceCRS string) (*ImportResult, error) {
	start := time.Now()

	if sourceCRS == "" {
		sourceCRS = im.defaultCRS
	}

	p, err := parse(format, data, parseOptions{
		filename: filename,
		crs:      sourceCRS,
		engine:   im.engine,
	})
	if err != nil {
		log.Debug().Err(err).Str("file", filename).Str("format", string(format)).Msg("Parse failed")
		return nil, err
	}

	name := SuggestedName(filename)
	if p.fc.Name == "" {
		p.fc.Name = name
	}

	norm, err := geo.NormalizeCounted(p.fc)
	if err != nil {
		if errors.Is(err, geo.ErrEmptyGeometry) {
			return nil, &ParseError{Reason: ReasonEmpty, Err: err}
		}
		return nil, err
	}

	res := &ImportResult{
		Collection: norm.Collection,
		Bounds:     norm.Bounds,
		Name:       name,
		Format:     format,
		Dropped:    p.dropped + norm.Dropped,
		Warnings:   p.warnings,
	}

	log.Info().
		Str("file", filename).
		Str("format", string(format)).
		Int("features", len(res.Collection.Features)).
		Int("dropped", res.Dropped).
		Dur("duration", time.Since(start)).
		Msg("File imported")

	return res, nil
}

// SuggestedName is the display name for an imported file: its base name without extension.
func SuggestedName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
