package processor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of importing one file of a batch.
type BatchResult struct {
	Path   string
	Result *ImportResult
	Err    error
}

// ImportBatch imports files with at most workers in flight. Files are
// independent: a failure is recorded in its result and does not stop the
// others. Results keep the order of paths.
func (im *Importer) ImportBatch(ctx context.Context, paths []string, sourceCRS string, workers int) []BatchResult {
	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			results[i] = im.importFile(gctx, path, sourceCRS)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().
		Int("files", len(paths)).
		Int("failed", failed).
		Int("workers", workers).
		Msg("Batch import finished")

	return results
}

func (im *Importer) importFile(ctx context.Context, path, sourceCRS string) BatchResult {
	if err := ctx.Err(); err != nil {
		return BatchResult{Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read file")
		return BatchResult{Path: path, Err: err}
	}

	res, err := im.Import(ctx, filepath.Base(path), data, sourceCRS)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to import file")
	}
	return BatchResult{Path: path, Result: res, Err: err}
}
