// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filing-harvester",
		Short: "Collects and deduplicates financial documents for tracked companies",
		Long: `filing-harvester walks a company universe, scrapes each company's
investor-relations page, pulls recent SEC filings from EDGAR, and stores
every document once under a content-addressed layout with JSON metadata.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus HARVESTER_* env)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRefreshCIKsCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
