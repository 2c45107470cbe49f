package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/app"
	"github.com/dohdata/prismzonal/internal/orchestrator"
)

var runTUI bool

// runCmd executes the full pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full download, expand and extract pipeline",
	Long: `Performs the complete pipeline for the configured variable and year:
1. Lists grid archives on the PRISM server.
2. Downloads archives not already on disk.
3. Expands downloaded archives in place.
4. Computes zonal mean CSVs for every grid without an existing output.

Every stage skips work whose result already exists, so an interrupted run
is resumed by running again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		db := getDB()
		cfg := getConfig()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var err error
		if runTUI {
			err = app.RunPipelineTUI(ctx, cfg, db, logger)
		} else {
			err = orchestrator.RunPipeline(ctx, cfg, db, logger, nil)
		}
		if err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show interactive progress instead of log output")
}
