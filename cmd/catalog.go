package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dohdata/prismzonal/internal/catalog"
	"github.com/dohdata/prismzonal/internal/util"
)

// catalogCmd lists the remote archives without downloading anything
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List grid archives available on the PRISM server",
	Long: `Fetches the directory listing for the configured variable and year and
prints the archive names, without downloading anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		listing, err := catalog.ListFiles(context.Background(), util.DefaultHTTPClient(), cfg, logger)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%d archives at %s\n", len(listing.Files), listing.URL)
		for _, f := range listing.Files {
			fmt.Fprintln(os.Stdout, f.Name)
		}
		return nil
	},
}
