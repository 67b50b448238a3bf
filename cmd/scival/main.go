package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/scival/internal/cli"
	"github.com/sdejongh/scival/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if models.IsConfigError(err) {
			os.Exit(models.StatusFatal.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	cli.Version, cli.Commit, cli.BuildDate = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "scival",
		Short: "Science product validation",
		Long: `scival validates a test set of geospatial science products against a
master set: rasters, text metadata, XML metadata and preview images are
paired by file name and compared, and the differences are reported.
It can also order and download products from ESPA and mirror master sets
from object storage.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(cli.NewQACommand())
	rootCmd.AddCommand(cli.NewESPACommand())
	rootCmd.AddCommand(cli.NewFetchCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	rootCmd.AddCommand(cli.NewVersionCommand())

	return rootCmd.Execute()
}
