// Package fetcher downloads catalogued archives that are not already on
// disk. Downloads are sequential; the archive host rate-limits aggressive
// clients and the expansion/extraction stages dominate run time anyway.
package fetcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dohdata/prismzonal/internal/catalog"
	"github.com/dohdata/prismzonal/internal/ledger"
	"github.com/dohdata/prismzonal/internal/util"
)

// FetchMissing downloads every listed file that is not already present in
// destDir. Presence is decided against a directory listing taken once at
// the start, by exact name match. A failed download is recorded and the
// batch continues; the joined error reports every failure at the end.
// Returns the paths of newly downloaded files.
func FetchMissing(ctx context.Context, client *http.Client, dbConn *sql.DB, logger *slog.Logger, listing catalog.Listing, destDir string) ([]string, error) {
	existing, err := listDir(destDir)
	if err != nil {
		return nil, fmt.Errorf("list destination directory %s: %w", destDir, err)
	}

	// The manifest says what once completed; the directory says what is
	// actually there. Disk presence decides the skip, the manifest only
	// flags files that completed before but vanished since.
	names := make([]string, 0, len(listing.Files))
	for _, f := range listing.Files {
		names = append(names, f.Name)
	}
	recorded, err := ledger.GetCompletionStatusBatch(ctx, dbConn, names, ledger.FileTypeArchive, ledger.EventDownloadEnd)
	if err != nil {
		logger.Error("Manifest batch check failed, relying on disk state alone.", "error", err)
		recorded = map[string]bool{}
	}

	toFetch := make([]catalog.RemoteFile, 0, len(listing.Files))
	skipped := 0
	for _, f := range listing.Files {
		if existing[f.Name] {
			skipped++
			ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventSkipDownload, listing.URL, filepath.Join(destDir, f.Name), "already present", nil)
			continue
		}
		if recorded[f.Name] {
			logger.Warn("Archive recorded complete but missing on disk, re-downloading.", slog.String("file", f.Name))
		}
		ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventDiscovered, listing.URL, "", "", nil)
		toFetch = append(toFetch, f)
	}
	if skipped > 0 {
		logger.Info("Skipping already downloaded files.", slog.Int("skipped_count", skipped), slog.Int("total_listed", len(listing.Files)))
	}
	if len(toFetch) == 0 {
		logger.Info("No new files require downloading.")
		return nil, nil
	}

	logger.Info("Downloading new files sequentially.", slog.Int("files_to_download", len(toFetch)))

	var finalErr error
	downloaded := make([]string, 0, len(toFetch))
	for i, f := range toFetch {
		select {
		case <-ctx.Done():
			logger.Warn("Download sequence cancelled.")
			return downloaded, errors.Join(finalErr, ctx.Err())
		default:
		}

		l := logger.With(
			slog.String("file", f.Name),
			slog.Int("file_num", i+1),
			slog.Int("total_to_download", len(toFetch)),
		)

		path, err := fetchOne(ctx, client, dbConn, l, listing, f, destDir)
		if err != nil {
			finalErr = errors.Join(finalErr, fmt.Errorf("download %s: %w", f.Name, err))
			continue
		}
		downloaded = append(downloaded, path)
	}

	if finalErr != nil {
		logger.Warn("Download phase completed with errors.", "error", finalErr)
	} else {
		logger.Info("Download phase completed successfully.", slog.Int("downloaded", len(downloaded)))
	}
	return downloaded, finalErr
}

func fetchOne(ctx context.Context, client *http.Client, dbConn *sql.DB, logger *slog.Logger, listing catalog.Listing, f catalog.RemoteFile, destDir string) (string, error) {
	startTime := time.Now()
	outputPath := filepath.Join(destDir, f.Name)

	fileURL, err := listing.URLFor(f.Name)
	if err != nil {
		ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventError, listing.URL, outputPath, err.Error(), nil)
		return "", err
	}

	l := logger.With(slog.String("url", fileURL))
	l.Info("Starting download.")
	ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventDownloadStart, fileURL, outputPath, "", nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		reqErr := fmt.Errorf("create request failed: %w", err)
		ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventError, fileURL, outputPath, reqErr.Error(), nil)
		l.Error("Failed creating request.", "error", reqErr)
		return "", reqErr
	}
	req.Header.Set("User-Agent", util.UserAgent)
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	data, err := util.DownloadFile(client, req)
	downloadDuration := time.Since(startTime)
	if err != nil {
		dlErr := fmt.Errorf("download http failed: %w", err)
		ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventError, fileURL, outputPath, dlErr.Error(), &downloadDuration)
		l.Error("Download failed.", "error", dlErr, slog.Duration("duration", downloadDuration.Round(time.Millisecond)))
		return "", dlErr
	}
	l.Debug("Download complete.", slog.Int("bytes", len(data)), slog.Duration("duration", downloadDuration.Round(time.Millisecond)))

	if err := util.WriteFileAtomic(outputPath, data, 0o644); err != nil {
		saveErr := fmt.Errorf("save archive %s: %w", outputPath, err)
		saveDuration := time.Since(startTime)
		ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventError, fileURL, outputPath, saveErr.Error(), &saveDuration)
		l.Error("Failed saving downloaded archive.", "error", err)
		return "", saveErr
	}

	totalDuration := time.Since(startTime)
	ledger.LogFileEvent(ctx, dbConn, f.Name, ledger.FileTypeArchive, ledger.EventDownloadEnd, fileURL, outputPath, "", &totalDuration)
	l.Info("Saved archive.", slog.Duration("total_duration", totalDuration.Round(time.Millisecond)))
	return outputPath, nil
}

func listDir(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[e.Name()] = true
		}
	}
	return names, nil
}
