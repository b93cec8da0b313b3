// Package pipeline orchestrates the per-book upscale flow: workspace
// setup, page extraction, batch planning, supervised upscaling with
// progress reporting, output reconciliation, and container assembly.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inkscale/inkscale/internal/config"
	"github.com/inkscale/inkscale/internal/epub"
	"github.com/inkscale/inkscale/internal/extract"
	"github.com/inkscale/inkscale/internal/home"
	"github.com/inkscale/inkscale/internal/imaging"
	"github.com/inkscale/inkscale/internal/pages"
	"github.com/inkscale/inkscale/internal/reconcile"
	"github.com/inkscale/inkscale/internal/upscale"
)

// Pipeline processes books end to end.
type Pipeline struct {
	mu     sync.Mutex
	cfg    *config.Config
	home   *home.Dir
	logger *slog.Logger
}

// New creates a pipeline over a home directory and configuration.
func New(cfg *config.Config, homeDir *home.Dir, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, home: homeDir, logger: logger}
}

// UpdateConfig swaps the configuration used for subsequent books.
// Registered with the config manager's change notifications so a long
// directory run picks up config edits between books; the book currently
// in flight keeps the snapshot it started with.
func (p *Pipeline) UpdateConfig(cfg *config.Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.logger.Info("configuration reloaded")
}

func (p *Pipeline) config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// BookResult summarizes one processed book.
type BookResult struct {
	Source     string
	Output     string
	Pages      int
	Upscaled   int
	Gaps       []int
	Warnings   int
	InputSize  int64
	OutputSize int64
	Duration   time.Duration
}

// ProcessBook runs the full pipeline for a single source file and
// writes the result into outputDir. The project workspace is removed
// on both success and failure paths.
func (p *Pipeline) ProcessBook(ctx context.Context, sourcePath, outputDir string) (*BookResult, error) {
	start := time.Now()
	cfg := p.config()
	log := p.logger.With("book", filepath.Base(sourcePath))

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))

	// Binary precondition first, before any workspace is created.
	sup := &upscale.Supervisor{
		Binary:      cfg.Upscale.Binary,
		ModelName:   cfg.Upscale.ModelName,
		Scale:       cfg.Upscale.Scale,
		Concurrency: cfg.Upscale.NumProcesses,
		Timeout:     time.Duration(cfg.Upscale.TimeoutMinutes) * time.Minute,
		Logger:      log,
	}
	if _, err := sup.ResolveBinary(); err != nil {
		return nil, err
	}

	project, err := p.home.NewProject(stem)
	if err != nil {
		return nil, fmt.Errorf("failed to create project workspace: %w", err)
	}
	defer func() {
		if err := project.Cleanup(); err != nil {
			log.Warn("failed to remove project workspace", "error", err)
		}
	}()

	localSource := project.OriginalFile(filepath.Base(sourcePath))
	if err := copyFile(sourcePath, localSource); err != nil {
		return nil, fmt.Errorf("failed to stage source: %w", err)
	}

	log.Info("extracting pages")
	extracted, err := extract.FromFile(ctx, localSource, project.ImagesDir(), extract.Options{
		MinEdge:       cfg.Upscale.MinPageEdge,
		OutputFormat:  cfg.Upscale.OutputFormat,
		OutputQuality: cfg.Upscale.OutputQuality,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	for _, w := range extracted.Warnings {
		log.Warn("extraction warning", "item", w.Item, "reason", w.Reason)
	}
	if err := pages.Validate(extracted.Records); err != nil {
		return nil, fmt.Errorf("inconsistent page set: %w", err)
	}
	log.Info("pages extracted", "count", len(extracted.Records))

	batches := upscale.Plan(extracted.Records, cfg.Upscale.NumProcesses)

	results, err := p.runSupervised(ctx, log, sup, project, batches, len(extracted.Records))
	if err != nil {
		return nil, err
	}

	summary, err := reconcile.Reconcile(project, results, extracted.Records, log)
	if err != nil {
		return nil, fmt.Errorf("reconciliation failed: %w", err)
	}

	outputPath := filepath.Join(outputDir, stem+".epub")
	if err := assemble(cfg, localSource, outputPath, extracted, log); err != nil {
		return nil, err
	}

	result := &BookResult{
		Source:   sourcePath,
		Output:   outputPath,
		Pages:    len(extracted.Records),
		Upscaled: summary.Matched,
		Gaps:     summary.Gaps,
		Warnings: len(extracted.Warnings),
		Duration: time.Since(start),
	}
	if fi, err := os.Stat(sourcePath); err == nil {
		result.InputSize = fi.Size()
	}
	if fi, err := os.Stat(outputPath); err == nil {
		result.OutputSize = fi.Size()
	}

	log.Info("book complete",
		"output", outputPath,
		"pages", result.Pages,
		"upscaled", result.Upscaled,
		"gaps", len(result.Gaps),
		"input_mb", fmt.Sprintf("%.1f", float64(result.InputSize)/(1<<20)),
		"output_mb", fmt.Sprintf("%.1f", float64(result.OutputSize)/(1<<20)),
		"duration", result.Duration.Round(time.Second),
	)

	return result, nil
}

// runSupervised executes the batches while a monitor reports output
// progress on the side.
func (p *Pipeline) runSupervised(ctx context.Context, log *slog.Logger, sup *upscale.Supervisor, project *home.Project, batches []*upscale.Batch, total int) ([]upscale.BatchResult, error) {
	mon := &upscale.Monitor{Logger: log}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	progress := make(chan upscale.Progress, 16)
	go mon.Watch(watchCtx, project, len(batches), total, progress)

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for pr := range progress {
			log.Info("upscale progress", "completed", pr.Completed, "total", pr.Total)
		}
	}()

	results, err := sup.Run(ctx, project, batches)
	stopWatch()
	<-reported
	if err != nil {
		return nil, fmt.Errorf("upscale run failed: %w", err)
	}

	// Grace period: the external tool may still be flushing its last
	// files when the process exits.
	final := mon.FinalCount(ctx, project, len(batches), total)
	log.Info("upscale finished", "outputs", final, "expected", total)

	return results, nil
}

// assemble writes the output container. EPUB sources are patched in
// place unless a fresh container was requested; PDF sources always get
// a synthesized one.
func assemble(cfg *config.Config, localSource, outputPath string, extracted *extract.Result, log *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	geo := epub.Geometry{
		ResizeToOriginal: cfg.EPUB.ResizeToOriginal,
		OutputFormat:     imaging.NormalizeFormat(cfg.Upscale.OutputFormat),
		OutputQuality:    cfg.Upscale.OutputQuality,
	}
	if cfg.EPUB.CreateEink {
		geo.TargetLongEdge = cfg.Upscale.TargetLongEdge
	}

	isEPUB := strings.EqualFold(filepath.Ext(localSource), ".epub")
	if isEPUB && !cfg.EPUB.CreateNew {
		log.Info("patching original container")
		return epub.PatchInPlace(localSource, outputPath, extracted.Records, geo, log)
	}

	log.Info("synthesizing container")
	return epub.NewBuilder(extracted.Meta, extracted.Records, geo, log).Build(outputPath)
}

// RunStats summarizes a directory run.
type RunStats struct {
	Total     int
	Processed int
	Skipped   int
	Failed    []string
	Elapsed   time.Duration
}

// ProcessDirectory scans the configured input directory for books and
// processes each in turn. Books whose output already exists are
// skipped, so an interrupted run resumes where it stopped. A failing
// book does not stop the run.
func (p *Pipeline) ProcessDirectory(ctx context.Context) (*RunStats, error) {
	cfg := p.config()
	inputDir := cfg.Directories.Input
	if inputDir == "" {
		return nil, fmt.Errorf("no input directory configured")
	}
	outputDir := filepath.Clean(inputDir) + cfg.Directories.OutputSuffix

	books, err := listBooks(inputDir)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		p.logger.Info("no books found", "dir", inputDir)
		return &RunStats{}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	start := time.Now()
	stats := &RunStats{Total: len(books)}
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stem := strings.TrimSuffix(filepath.Base(book), filepath.Ext(book))
		if _, err := os.Stat(filepath.Join(outputDir, stem+".epub")); err == nil {
			p.logger.Info("skipping processed book", "book", filepath.Base(book))
			stats.Skipped++
			continue
		}

		if _, err := p.ProcessBook(ctx, book, outputDir); err != nil {
			p.logger.Error("book failed", "book", filepath.Base(book), "error", err)
			stats.Failed = append(stats.Failed, filepath.Base(book))
			continue
		}
		stats.Processed++
	}

	stats.Elapsed = time.Since(start)
	p.logger.Info("run complete",
		"books", stats.Total,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", len(stats.Failed),
		"elapsed", stats.Elapsed.Round(time.Second),
	)
	return stats, nil
}

// listBooks returns the source books in dir, sorted by name.
func listBooks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var books []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".epub", ".pdf":
			books = append(books, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(books)
	return books, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
