// Package reconcile merges per-batch upscaler output workspaces into
// one namespace and resolves each output file back to its page
// identity. The external tool decorates output names (typically a
// scale-factor prefix such as "4x-"), so resolution never relies on
// exact name equality: it falls back to the numeric page token embedded
// in the name.
package reconcile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkscale/inkscale/internal/home"
	"github.com/inkscale/inkscale/internal/pages"
	"github.com/inkscale/inkscale/internal/upscale"
)

// Summary reports the outcome of reconciliation.
type Summary struct {
	// Matched is the number of pages with an upscaled output resolved.
	Matched int
	// Gaps lists page numbers with no resolvable output. Gaps are
	// non-fatal: assembly substitutes the original image for them.
	Gaps []int
}

// Reconcile consolidates successful batch outputs, sets OutputPath on
// every record it can resolve, and tears down the batch-scoped
// workspaces. Records are mutated here and nowhere else; all
// supervisors have completed by the time this runs.
func Reconcile(project *home.Project, results []upscale.BatchResult, records []*pages.Record, logger *slog.Logger) (*Summary, error) {
	log := logger
	if log == nil {
		log = slog.Default()
	}

	if err := mergeOutputs(project, results); err != nil {
		return nil, err
	}

	names, err := listOutputs(project.OutputsDir())
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	claimed := make(map[string]bool, len(names))

	for _, rec := range records {
		name, ok := resolveOutput(rec, names, claimed)
		if !ok {
			summary.Gaps = append(summary.Gaps, rec.PageNumber)
			log.Warn("no upscaled output for page", "page", rec.PageNumber, "staged", filepath.Base(rec.StagedPath))
			continue
		}
		claimed[name] = true
		rec.OutputPath = filepath.Join(project.OutputsDir(), name)
		summary.Matched++
	}

	// Batch workspaces (outputs, job files) are transient; only the
	// consolidated outputs survive into assembly.
	for _, r := range results {
		if err := os.RemoveAll(project.BatchDir(r.Batch.Index)); err != nil {
			log.Warn("failed to remove batch workspace", "batch", r.Batch.Index, "error", err)
		}
	}

	log.Info("reconciliation complete", "matched", summary.Matched, "gaps", len(summary.Gaps))
	return summary, nil
}

// mergeOutputs moves every successful batch's output files into the
// consolidated outputs directory. A newer result replaces an older one
// with the same name.
func mergeOutputs(project *home.Project, results []upscale.BatchResult) error {
	if err := project.EnsureOutputsDir(); err != nil {
		return fmt.Errorf("failed to create outputs directory: %w", err)
	}

	for _, r := range results {
		if !r.Success {
			continue
		}
		entries, err := os.ReadDir(project.BatchOutputsDir(r.Batch.Index))
		if err != nil {
			return fmt.Errorf("failed to read batch %d outputs: %w", r.Batch.Index, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			src := filepath.Join(project.BatchOutputsDir(r.Batch.Index), e.Name())
			dst := filepath.Join(project.OutputsDir(), e.Name())
			if err := os.RemoveAll(dst); err != nil {
				return fmt.Errorf("failed to replace stale output %s: %w", dst, err)
			}
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("failed to consolidate %s: %w", src, err)
			}
		}
	}
	return nil
}

func listOutputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// resolveOutput matches one page record against the consolidated output
// names. Priority: (1) decorated-name match, where the output stem
// contains the staged stem as prefix or suffix ("4x-page_0007" for
// "page_0007"); (2) numeric-token fallback, any output whose embedded
// page token equals the page number. Each output is claimed at most once.
func resolveOutput(rec *pages.Record, names []string, claimed map[string]bool) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(rec.StagedPath), filepath.Ext(rec.StagedPath))

	for _, name := range names {
		if claimed[name] {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == base || strings.HasSuffix(stem, base) || strings.HasPrefix(stem, base) {
			return name, true
		}
	}

	for _, name := range names {
		if claimed[name] {
			continue
		}
		if n, ok := pages.NumberFromName(name); ok && n == rec.PageNumber {
			return name, true
		}
	}

	return "", false
}
