package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DefaultBaseURL is the PRISM daily archive root. Listing pages live at
// <base>/<variable>/<year>/.
const DefaultBaseURL = "https://ftp.prism.oregonstate.edu/daily"

const (
	// DefaultVariable is the climate element to pull (daily max temperature).
	DefaultVariable = "tmax"

	// DefaultZoneIDProperty is the feature property holding the stable zone
	// identifier in the census tract boundary file.
	DefaultZoneIDProperty = "GEOID10"

	// FileMarker distinguishes genuine grid archives from navigation links
	// on the listing page.
	FileMarker = "_bil"
)

// DefaultNumWorkers leaves a couple of cores free so a full extraction run
// doesn't starve the rest of the machine.
func DefaultNumWorkers() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// Config holds application settings. It is built once at startup and passed
// explicitly into each stage; no component reads ambient state after that.
type Config struct {
	DataDir        string // root for downloads/<year> and outputs/<year>
	ZonesPath      string // GeoJSON boundary file for the zone polygon set
	ZoneIDProperty string
	BaseURL        string
	Variable       string
	Year           int
	DbPath         string
	NumWorkers     int
}

// DownloadDir is where archives for the configured year are fetched and
// expanded.
func (c Config) DownloadDir() string {
	return filepath.Join(c.DataDir, "downloads", strconv.Itoa(c.Year))
}

// OutputDir holds one extraction CSV per processed grid for the year.
func (c Config) OutputDir() string {
	return filepath.Join(c.DataDir, "outputs", strconv.Itoa(c.Year))
}

// Validate checks the settings a run cannot proceed without.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.ZonesPath == "" {
		return fmt.Errorf("zone boundary file is required")
	}
	if c.Year < 1895 || c.Year > 2100 {
		return fmt.Errorf("year %d outside the PRISM record", c.Year)
	}
	if c.Variable == "" {
		return fmt.Errorf("variable is required")
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.NumWorkers)
	}
	return nil
}

// EnsureDirs creates the per-year download and output directories.
func (c Config) EnsureDirs() error {
	for _, d := range []string{c.DownloadDir(), c.OutputDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// EnvOrDefault reads an environment variable, falling back when unset.
// Flag defaults consult this so a .env file can stand in for repetitive
// flags.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
