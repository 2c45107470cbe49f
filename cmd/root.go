package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/ledger"
)

var (
	// Config flags - bound in init()
	dataDir        string
	zonesPath      string
	zoneIDProperty string
	baseURL        string
	variable       string
	year           int
	dbPath         string
	workers        int
	logFormat      string
	logLevel       string
	logOutput      string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prismzonal",
	Short: "Download PRISM daily grids and extract per-zone climate statistics.",
	Long: `Prismzonal fetches daily PRISM climate grids for a variable and year,
expands the archives and computes the mean value of each grid over a set of
zone polygons (e.g. census tracts), writing one CSV per day. A DuckDB
database tracks the per-file event history.

The primary command is 'run', which executes the full pipeline. Other
commands list the remote catalog, summarize output, export Parquet or view
the event log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				// Not closed explicitly; the OS cleans up when the CLI exits.
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)
		rootLogger.Info("Logger initialized", "level", level.String(), "format", logFormat, "output", logOutput)

		// --- 2. Load/Validate Config (from flags) ---
		appConfig = config.Config{
			DataDir:        dataDir,
			ZonesPath:      zonesPath,
			ZoneIDProperty: zoneIDProperty,
			BaseURL:        baseURL,
			Variable:       variable,
			Year:           year,
			DbPath:         dbPath,
			NumWorkers:     workers,
		}
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if err := appConfig.Validate(); err != nil {
			return err
		}
		if err := appConfig.EnsureDirs(); err != nil {
			return err
		}
		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		rootLogger.Info("Initializing DuckDB connection", "path", appConfig.DbPath)
		var err error
		dbConn, err = ledger.Open(appConfig.DbPath)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		rootLogger.Info("Database connection successful.")

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			rootLogger.Info("Closing DuckDB connection.")
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(stateCmd)

	err := rootCmd.Execute()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	// A .env file can stand in for flags; real environment wins over file
	// values and explicit flags win over both.
	godotenv.Load()

	defaultYear := time.Now().Year() - 1
	if v := config.EnvOrDefault("PRISMZONAL_YEAR", ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			defaultYear = parsed
		}
	}

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d",
		config.EnvOrDefault("PRISMZONAL_DATA_DIR", "./data"),
		"Root directory for downloads/<year> and outputs/<year>")
	rootCmd.PersistentFlags().StringVarP(&zonesPath, "zones", "z",
		config.EnvOrDefault("PRISMZONAL_ZONES", ""),
		"GeoJSON FeatureCollection of zone polygons")
	rootCmd.PersistentFlags().StringVar(&zoneIDProperty, "zone-id-property",
		config.EnvOrDefault("PRISMZONAL_ZONE_ID_PROPERTY", config.DefaultZoneIDProperty),
		"Feature property holding the zone identifier")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url",
		config.EnvOrDefault("PRISMZONAL_BASE_URL", config.DefaultBaseURL),
		"PRISM archive root URL")
	rootCmd.PersistentFlags().StringVarP(&variable, "variable", "v",
		config.EnvOrDefault("PRISMZONAL_VARIABLE", config.DefaultVariable),
		"Climate variable to pull (tmax, tmin, ppt, tmean, ...)")
	rootCmd.PersistentFlags().IntVarP(&year, "year", "y", defaultYear, "Year to process")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path",
		config.EnvOrDefault("PRISMZONAL_DB_PATH", "./prismzonal_state.duckdb"),
		"Path to DuckDB state database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", config.DefaultNumWorkers(),
		"Number of concurrent extraction workers")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.3.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
