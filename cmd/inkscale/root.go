package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkscale/inkscale/version"
)

var (
	cfgFile string
	homeDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "inkscale",
	Short: "Comic and e-book upscaling pipeline",
	Long: `Inkscale upscales the page images inside EPUB and PDF books using an
external super-resolution tool, then reassembles the result as an EPUB.

The pipeline includes:
  - Page extraction with document-order identity assignment
  - Balanced batch planning for parallel upscaler runs
  - External process supervision with progress reporting
  - Output reconciliation (missing pages fall back to the original)
  - Container assembly by in-place patching or full synthesis`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.inkscale/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "inkscale home directory (default: ~/.inkscale)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
