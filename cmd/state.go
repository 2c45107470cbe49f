package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/ledger"
)

var stateLimit int
var stateFilterEvent string

// stateCmd shows the per-file event history
var stateCmd = &cobra.Command{
	Use:   "state [filetype]",
	Short: "View the event log history for tracked files",
	Long: `Queries the DuckDB event log and displays the history for tracked files.
Specify 'archives', 'rasters' or 'csvs' as an optional argument to filter
by file type. Use flags to filter by event type and limit the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		dbConn := getDB()
		fileTypeFilter := ""
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "archives", "archive", "zips", "zip":
				fileTypeFilter = ledger.FileTypeArchive
			case "rasters", "raster", "grids", "grid":
				fileTypeFilter = ledger.FileTypeRaster
			case "csvs", "csv":
				fileTypeFilter = ledger.FileTypeCsv
			default:
				return fmt.Errorf("invalid filetype filter: %s (use 'archives', 'rasters' or 'csvs')", args[0])
			}
		}

		logger.Info("Querying database event log",
			"type_filter", fileTypeFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		return ledger.DisplayHistory(context.Background(), dbConn, fileTypeFilter, stateFilterEvent, stateLimit)
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event type (e.g., download_end, error, extract_start)")
}
