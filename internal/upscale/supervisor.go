package upscale

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkscale/inkscale/internal/home"
)

// ErrBinaryNotFound indicates the external upscaler executable could
// not be resolved. Checked once before any batch launches.
var ErrBinaryNotFound = errors.New("upscaler binary not found")

// BatchResult is the outcome of one batch's external invocation.
// Failures are recorded, not retried: tool failures are typically
// deterministic (a corrupt input image) and blind retry wastes GPU time.
type BatchResult struct {
	Batch   *Batch
	Success bool
	Stderr  string
	Err     error
}

// Supervisor invokes the external upscaler once per batch, concurrently
// up to a configured limit.
type Supervisor struct {
	// Binary is the upscaler executable, resolved on PATH if bare.
	Binary string
	// ModelName and Scale go into each batch's job file.
	ModelName string
	Scale     int
	// Concurrency bounds parallel invocations. Defaults to NumCPU.
	Concurrency int
	// Timeout is the per-batch wall-clock limit. Zero means none.
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ResolveBinary locates the upscaler executable. This is the fail-fast
// precondition: it runs once, before any batch workspace is touched.
func (s *Supervisor) ResolveBinary() (string, error) {
	path, err := exec.LookPath(s.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, s.Binary)
	}
	return path, nil
}

// Run prepares every batch workspace and executes the external tool
// once per batch, bounded by Concurrency. Individual batch failures are
// recorded in the returned results, never propagated as an error; the
// only error conditions are the binary precondition and context
// cancellation.
func (s *Supervisor) Run(ctx context.Context, project *home.Project, batches []*Batch) ([]BatchResult, error) {
	log := s.logger()

	binary, err := s.ResolveBinary()
	if err != nil {
		return nil, err
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	log.Info("starting upscale",
		"batches", len(batches),
		"model", s.ModelName,
		"scale", s.Scale,
		"concurrency", concurrency,
	)

	results := make([]BatchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			results[i] = s.runBatch(gctx, binary, project, batch)
			if results[i].Success {
				log.Info("batch complete", "batch", batch.Index, "pages", len(batch.Records))
			} else {
				log.Warn("batch failed", "batch", batch.Index, "error", results[i].Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// runBatch stages one batch's workspace and blocks on the external
// process.
func (s *Supervisor) runBatch(ctx context.Context, binary string, project *home.Project, batch *Batch) BatchResult {
	result := BatchResult{Batch: batch}

	if err := project.EnsureBatchDir(batch.Index); err != nil {
		result.Err = err
		return result
	}

	jobPath := project.BatchJobPath(batch.Index)
	if err := WriteJobFile(jobPath, batch, project.BatchOutputsDir(batch.Index), s.ModelName, s.Scale); err != nil {
		result.Err = err
		return result
	}

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, "--YAML", jobPath, "--NOTOPENFOLDER")
	cmd.Stderr = &stderr

	err := cmd.Run()
	result.Stderr = stderr.String()

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			result.Err = fmt.Errorf("batch %d exceeded %s timeout", batch.Index, s.Timeout)
		} else {
			result.Err = fmt.Errorf("upscaler exited abnormally: %w", err)
		}
		return result
	}

	result.Success = true
	return result
}
