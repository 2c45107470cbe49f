// Package extractor turns expanded PRISM grids into per-day zonal
// statistics. Each grid is an independent unit of work: one input .bil,
// one output CSV holding a row per zone. Grids are processed by a fixed
// worker pool over a shared read-only zone set.
package extractor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/ledger"
	"github.com/dohdata/prismzonal/internal/raster"
	"github.com/dohdata/prismzonal/internal/util"
	"github.com/dohdata/prismzonal/internal/zones"
)

// Job is one grid queued for extraction.
type Job struct {
	BilPath    string
	Name       string // base name of the expanded archive directory
	Date       time.Time
	OutputPath string
}

// Result is the outcome of one job. Exactly one of Skipped, Err or a
// successful write applies; Rows and Elapsed are only meaningful on
// success. Total carries the run's grid count so progress consumers can
// size themselves.
type Result struct {
	Job
	Total   int
	Skipped bool
	Rows    int
	Elapsed time.Duration
	Err     error
}

// DiscoverRasters walks dir recursively and returns every .bil grid,
// sorted by path. Expanded archives each live in their own directory, so
// the walk order doubles as date order for PRISM's naming scheme.
func DiscoverRasters(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".bil") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s for grids: %w", dir, err)
	}
	return found, nil
}

// Run extracts zonal means for every grid under the configured download
// directory that does not already have an output CSV. The zone set is
// loaded and reprojected once, before any worker starts; workers only
// read it. A failed grid is recorded and the batch continues; the joined
// error reports every failure. onResult, when non-nil, receives each
// job's outcome as it completes (skips included).
func Run(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, cfg config.Config, onResult func(Result)) error {
	bilPaths, err := DiscoverRasters(cfg.DownloadDir())
	if err != nil {
		return err
	}
	if len(bilPaths) == 0 {
		logger.Info("No grids found to extract.", slog.String("dir", cfg.DownloadDir()))
		return nil
	}

	jobList, skippedResults, err := buildJobs(ctx, dbConn, cfg, bilPaths)
	if err != nil {
		return err
	}
	for _, res := range skippedResults {
		res.Total = len(bilPaths)
		if onResult != nil {
			onResult(res)
		}
	}
	if len(skippedResults) > 0 {
		logger.Info("Skipping grids with existing outputs.",
			slog.Int("skipped_count", len(skippedResults)),
			slog.Int("total_grids", len(bilPaths)))
	}
	if len(jobList) == 0 {
		logger.Info("No grids require extraction.")
		return nil
	}

	set, err := zones.Load(cfg.ZonesPath, cfg.ZoneIDProperty)
	if err != nil {
		return err
	}
	// All grids in a batch come from the same archive and share a CRS;
	// the first grid decides the target and mismatches fail per-file.
	targetCRS := raster.DatasetCRS(jobList[0].BilPath)
	set, err = set.Reproject(targetCRS)
	if err != nil {
		return err
	}
	zoneBound := set.Bound()

	logger.Info("Starting extraction workers.",
		slog.Int("workers", cfg.NumWorkers),
		slog.Int("grids", len(jobList)),
		slog.Int("zones", len(set.Zones)),
		slog.String("crs", targetCRS.String()))

	jobs := make(chan Job, len(jobList))
	results := make(chan Result, len(jobList))

	var wg sync.WaitGroup
	for i := 0; i < cfg.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					results <- Result{Job: job, Err: ctx.Err()}
					continue
				default:
				}
				results <- extractOne(ctx, dbConn, logger, set, zoneBound, job)
			}
		}()
	}

	for _, job := range jobList {
		jobs <- job
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var finalErr error
	done := 0
	failed := 0
	for res := range results {
		res.Total = len(bilPaths)
		done++
		if res.Err != nil {
			failed++
			finalErr = errors.Join(finalErr, fmt.Errorf("%s: %w", res.Name, res.Err))
			logger.Error("Grid extraction failed.",
				slog.String("grid", res.Name), slog.Any("error", res.Err))
		} else {
			logger.Info("Grid extracted.",
				slog.String("grid", res.Name),
				slog.String("output", res.OutputPath),
				slog.Int("rows", res.Rows),
				slog.Duration("duration", res.Elapsed),
				slog.Int("completed", done),
				slog.Int("remaining", len(jobList)-done))
		}
		if onResult != nil {
			onResult(res)
		}
	}

	logger.Info("Extraction finished.",
		slog.Int("extracted", done-failed),
		slog.Int("failed", failed),
		slog.Int("skipped", len(skippedResults)))
	return finalErr
}

// buildJobs pairs each grid with its output path and splits off the ones
// whose output already exists. Presence on disk is the skip condition;
// the manifest only records the decision.
func buildJobs(ctx context.Context, dbConn *sql.DB, cfg config.Config, bilPaths []string) ([]Job, []Result, error) {
	jobList := make([]Job, 0, len(bilPaths))
	var skipped []Result
	for _, path := range bilPaths {
		name := filepath.Base(filepath.Dir(path))
		date, err := util.ExtractFileDate(name)
		if err != nil {
			return nil, nil, fmt.Errorf("grid directory %s: %w", name, err)
		}
		job := Job{
			BilPath:    path,
			Name:       name,
			Date:       date,
			OutputPath: filepath.Join(cfg.OutputDir(), name+".csv"),
		}
		if _, err := os.Stat(job.OutputPath); err == nil {
			ledger.LogFileEvent(ctx, dbConn, job.Name, ledger.FileTypeRaster, ledger.EventSkipExtract,
				"", job.OutputPath, "output already present", nil)
			skipped = append(skipped, Result{Job: job, Skipped: true})
			continue
		}
		jobList = append(jobList, job)
	}
	return jobList, skipped, nil
}

// extractOne runs the full per-grid pipeline: load, crop to the combined
// zone bound, compute one mean per zone and atomically write the CSV. The
// completion event is logged only after the rename, so the manifest never
// records a partial output.
func extractOne(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, set *zones.Set, zoneBound orb.Bound, job Job) Result {
	start := time.Now()
	ledger.LogFileEvent(ctx, dbConn, job.Name, ledger.FileTypeRaster, ledger.EventExtractStart,
		"", job.OutputPath, "", nil)

	fail := func(err error) Result {
		ledger.LogFileEvent(ctx, dbConn, job.Name, ledger.FileTypeRaster, ledger.EventError,
			"", job.OutputPath, err.Error(), nil)
		return Result{Job: job, Err: err}
	}

	r, err := raster.ReadDataset(job.BilPath)
	if err != nil {
		return fail(err)
	}
	if r.CRS != set.CRS {
		return fail(fmt.Errorf("grid is %s but zones were prepared for %s", r.CRS, set.CRS))
	}

	cropped := r.Crop(zoneBound)
	rows := make([]Row, 0, len(set.Zones))
	for _, z := range set.Zones {
		rows = append(rows, Row{
			ZoneID: z.ID,
			Date:   Date(job.Date),
			Mean:   ZonalMean(cropped, z.Geometry),
		})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fail(fmt.Errorf("encode rows: %w", err))
	}
	if err := util.WriteFileAtomic(job.OutputPath, data, 0o644); err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	ledger.LogFileEvent(ctx, dbConn, job.Name, ledger.FileTypeCsv, ledger.EventExtractEnd,
		"", job.OutputPath, "", &elapsed)
	return Result{Job: job, Rows: len(rows), Elapsed: elapsed}
}
