// Package export converts extraction CSVs to Parquet for columnar
// consumers. Each per-day CSV becomes one Parquet file next to it,
// Snappy-compressed, with the date widened to a millisecond timestamp and
// missing means stored as NULL instead of the CSV marker.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/extractor"
	"github.com/dohdata/prismzonal/internal/ledger"
)

var rowSchema = []string{
	"name=GEOID10, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED",
	"name=date, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=REQUIRED",
	"name=mean, type=DOUBLE, repetitiontype=OPTIONAL",
}

// ExportParquet converts every output CSV for the configured year that
// does not already have a Parquet twin. Files are written under a
// temporary name and renamed on success; a failed conversion is recorded
// and the batch continues.
func ExportParquet(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, cfg config.Config) error {
	csvPaths, err := filepath.Glob(filepath.Join(cfg.OutputDir(), "*.csv"))
	if err != nil {
		return fmt.Errorf("glob output CSVs in %s: %w", cfg.OutputDir(), err)
	}
	if len(csvPaths) == 0 {
		logger.Info("No output CSVs to export.", slog.String("dir", cfg.OutputDir()))
		return nil
	}

	var finalErr error
	exported, skipped := 0, 0
	for _, csvPath := range csvPaths {
		select {
		case <-ctx.Done():
			return errors.Join(finalErr, ctx.Err())
		default:
		}

		destPath := strings.TrimSuffix(csvPath, ".csv") + ".parquet"
		name := filepath.Base(destPath)
		if _, err := os.Stat(destPath); err == nil {
			skipped++
			continue
		}

		start := time.Now()
		if err := exportOne(csvPath, destPath); err != nil {
			logger.Error("Parquet export failed.", slog.String("file", name), slog.Any("error", err))
			ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeCsv, ledger.EventError, "", destPath, err.Error(), nil)
			finalErr = errors.Join(finalErr, fmt.Errorf("%s: %w", name, err))
			continue
		}
		elapsed := time.Since(start)
		logger.Info("Exported Parquet file.", slog.String("file", name), slog.Duration("duration", elapsed))
		exported++
	}

	logger.Info("Parquet export finished.",
		slog.Int("exported", exported),
		slog.Int("skipped", skipped),
		slog.Int("total", len(csvPaths)))
	return finalErr
}

func exportOne(csvPath, destPath string) error {
	data, err := os.ReadFile(csvPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", csvPath, err)
	}
	var rows []extractor.Row
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse %s: %w", csvPath, err)
	}

	tmpPath := destPath + ".tmp"
	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return fmt.Errorf("create parquet file %s: %w", tmpPath, err)
	}
	pw, err := writer.NewCSVWriter(rowSchema, fw, 2)
	if err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("init parquet writer for %s: %w", tmpPath, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		zoneID := row.ZoneID
		dateMS := strconv.FormatInt(time.Time(row.Date).UnixMilli(), 10)
		rec := []*string{&zoneID, &dateMS, nil}
		if row.Mean.Valid {
			mean := strconv.FormatFloat(row.Mean.Mean, 'f', -1, 64)
			rec[2] = &mean
		}
		if err := pw.WriteString(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write row to %s: %w", tmpPath, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", tmpPath, err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, destPath, err)
	}
	return nil
}
