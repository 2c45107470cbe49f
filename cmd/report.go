package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/analyser"
)

// reportCmd summarizes extraction output
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize extracted zonal statistics per zone",
	Long: `Aggregates every output CSV for the configured year with DuckDB and
prints a per-zone summary: days covered, days observed, and the average,
minimum and maximum of the daily means.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyser.RunAnalysis(context.Background(), getConfig(), os.Stdout)
	},
}
