package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkscale/inkscale/internal/config"
	"github.com/inkscale/inkscale/internal/home"
	"github.com/inkscale/inkscale/internal/pipeline"
)

var runOutputDir string

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Upscale books",
	Long: `Upscale books through the external super-resolution tool.

With a directory argument (or the configured input directory), every
*.epub and *.pdf inside is processed; books whose output already exists
are skipped, so an interrupted run can simply be restarted. With a file
argument, just that book is processed.

Examples:
  inkscale run                     # Process the configured input directory
  inkscale run ~/comics            # Process a directory
  inkscale run book.epub           # Process one book
  inkscale run book.pdf -o ~/out   # Process one book into a chosen directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if cfg.TempDir != "" {
			if h, err = home.New(cfg.TempDir); err != nil {
				return err
			}
			if err := h.EnsureExists(); err != nil {
				return err
			}
		}

		p := pipeline.New(cfg, h, logger)

		if len(args) == 1 {
			fi, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", args[0], err)
			}
			if !fi.IsDir() {
				outDir := runOutputDir
				if outDir == "" {
					parent := filepath.Dir(args[0])
					outDir = filepath.Clean(parent) + cfg.Directories.OutputSuffix
				}
				_, err := p.ProcessBook(ctx, args[0], outDir)
				return err
			}
			cfg.Directories.Input = args[0]
		}

		// Config edits during a long run apply to subsequent books.
		cm.OnChange(p.UpdateConfig)
		cm.WatchConfig()

		stats, err := p.ProcessDirectory(ctx)
		if err != nil {
			return err
		}
		if len(stats.Failed) > 0 {
			return fmt.Errorf("%d of %d books failed: %s",
				len(stats.Failed), stats.Total, strings.Join(stats.Failed, ", "))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "output directory for single-book runs")

	rootCmd.AddCommand(runCmd)
}
