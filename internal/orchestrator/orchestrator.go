// Package orchestrator runs the four pipeline phases in order: list the
// remote catalog, fetch missing archives, expand them and extract zonal
// statistics. Each phase is idempotent on its own, so a crashed or
// cancelled run is resumed by running again.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dohdata/prismzonal/internal/catalog"
	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/expander"
	"github.com/dohdata/prismzonal/internal/extractor"
	"github.com/dohdata/prismzonal/internal/fetcher"
	"github.com/dohdata/prismzonal/internal/util"
)

// RunPipeline executes the full workflow for the configured variable and
// year. Phase failures accumulate rather than abort: a bad archive should
// not stop the rest of the year from being processed. Cancellation stops
// between phases and inside each phase's own loop. onResult is forwarded
// to the extraction phase for progress reporting and may be nil.
func RunPipeline(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, onResult func(extractor.Result)) error {
	logger.Info("Starting pipeline.",
		slog.String("variable", cfg.Variable),
		slog.Int("year", cfg.Year),
		slog.String("data_dir", cfg.DataDir))
	client := util.DefaultHTTPClient()
	var finalErr error

	logger.Info("Phase 1: Listing remote catalog.")
	listing, err := catalog.ListFiles(ctx, client, cfg, logger)
	if err != nil {
		// Nothing downstream can run without a listing on a fresh data
		// dir, but archives already on disk can still be expanded and
		// extracted.
		logger.Error("Catalog listing failed, continuing with local files only.", slog.Any("error", err))
		finalErr = errors.Join(finalErr, err)
		listing = catalog.Listing{}
	}
	if ctx.Err() != nil {
		return errors.Join(finalErr, ctx.Err())
	}

	logger.Info("Phase 2: Fetching missing archives.")
	downloaded, err := fetcher.FetchMissing(ctx, client, dbConn, logger, listing, cfg.DownloadDir())
	if err != nil {
		finalErr = errors.Join(finalErr, err)
	}
	logger.Info("Fetch phase complete.", slog.Int("downloaded", len(downloaded)))
	if ctx.Err() != nil {
		return errors.Join(finalErr, ctx.Err())
	}

	logger.Info("Phase 3: Expanding archives.")
	expanded, err := expander.ExpandAll(ctx, dbConn, logger, cfg.DownloadDir())
	if err != nil {
		finalErr = errors.Join(finalErr, err)
	}
	logger.Info("Expand phase complete.", slog.Int("expanded", len(expanded)))
	if ctx.Err() != nil {
		return errors.Join(finalErr, ctx.Err())
	}

	logger.Info("Phase 4: Extracting zonal statistics.")
	if err := extractor.Run(ctx, dbConn, logger, cfg, onResult); err != nil {
		finalErr = errors.Join(finalErr, err)
	}

	if finalErr != nil {
		logger.Error("Pipeline finished with errors.", slog.Any("error", finalErr))
	} else {
		logger.Info("Pipeline finished.")
	}
	return finalErr
}
