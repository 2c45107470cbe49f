package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/export"
)

// exportCmd converts output CSVs to Parquet
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert output CSVs to Snappy-compressed Parquet",
	Long: `Converts every output CSV for the configured year into a Parquet file
alongside it. Files that already have a Parquet twin are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return export.ExportParquet(ctx, getDB(), getLogger(), getConfig())
	},
}
