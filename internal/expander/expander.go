// Package expander unpacks downloaded grid archives into per-archive
// working directories. An archive is considered expanded when a directory
// with its base name exists; expansion goes through a temporary directory
// renamed into place, so a crash mid-expansion never leaves a directory
// that passes the skip check.
package expander

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dohdata/prismzonal/internal/ledger"
)

// ExpandAll scans dir for *.zip archives and expands any whose expansion
// directory does not yet exist. A failed expansion is recorded and the
// batch continues. Returns the expansion directories created in this run.
func ExpandAll(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, dir string) ([]string, error) {
	archives, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return nil, fmt.Errorf("glob archives in %s: %w", dir, err)
	}
	if len(archives) == 0 {
		logger.Info("No archives found to expand.", slog.String("dir", dir))
		return nil, nil
	}

	var finalErr error
	expanded := make([]string, 0, len(archives))
	skipped := 0
	for _, archivePath := range archives {
		select {
		case <-ctx.Done():
			logger.Warn("Expansion cancelled.")
			return expanded, errors.Join(finalErr, ctx.Err())
		default:
		}

		name := filepath.Base(archivePath)
		destDir := strings.TrimSuffix(archivePath, filepath.Ext(archivePath))

		if _, statErr := os.Stat(destDir); statErr == nil {
			skipped++
			ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventSkipExpand, "", destDir, "expansion directory present", nil)
			continue
		}

		l := logger.With(slog.String("archive", name), slog.String("dest_dir", destDir))
		if err := expandOne(ctx, dbConn, l, archivePath, name, destDir); err != nil {
			finalErr = errors.Join(finalErr, fmt.Errorf("expand %s: %w", name, err))
			continue
		}
		expanded = append(expanded, destDir)
	}

	logger.Info("Expansion phase finished.",
		slog.Int("expanded", len(expanded)),
		slog.Int("skipped", skipped),
		slog.Int("total_archives", len(archives)))
	return expanded, finalErr
}

func expandOne(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, archivePath, name, destDir string) error {
	startTime := time.Now()
	logger.Info("Expanding archive.")
	ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventExpandStart, "", destDir, "", nil)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		openErr := fmt.Errorf("open archive: %w", err)
		ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventError, "", destDir, openErr.Error(), nil)
		logger.Error("Failed to open archive.", "error", openErr)
		return openErr
	}
	defer zr.Close()

	// Expand into a sibling temp dir, then rename. The rename is the
	// completion point.
	tmpDir, err := os.MkdirTemp(filepath.Dir(destDir), filepath.Base(destDir)+".tmp*")
	if err != nil {
		tmpErr := fmt.Errorf("create temp expansion dir: %w", err)
		ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventError, "", destDir, tmpErr.Error(), nil)
		return tmpErr
	}
	defer os.RemoveAll(tmpDir) // no-op after successful rename

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractMember(f, tmpDir); err != nil {
			memberErr := fmt.Errorf("extract %s: %w", f.Name, err)
			ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventError, "", destDir, memberErr.Error(), nil)
			logger.Error("Failed extracting archive member.", "error", memberErr)
			return memberErr
		}
	}

	if err := os.Rename(tmpDir, destDir); err != nil {
		renameErr := fmt.Errorf("finalize expansion dir: %w", err)
		ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventError, "", destDir, renameErr.Error(), nil)
		return renameErr
	}

	duration := time.Since(startTime)
	ledger.LogFileEvent(ctx, dbConn, name, ledger.FileTypeArchive, ledger.EventExpandEnd, "", destDir, "", &duration)
	logger.Info("Archive expanded.", slog.Duration("duration", duration.Round(time.Millisecond)))
	return nil
}

func extractMember(f *zip.File, destDir string) error {
	// Flatten archive paths; PRISM zips are flat, and keeping only the base
	// name blocks zip-slip traversal.
	outPath := filepath.Join(destDir, filepath.Base(f.Name))

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open member stream: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		rc.Close()
		return fmt.Errorf("create %s: %w", outPath, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeOutErr := out.Close()
	closeRcErr := rc.Close()
	if err := errors.Join(copyErr, closeOutErr, closeRcErr); err != nil {
		os.Remove(outPath)
		return err
	}
	return nil
}
