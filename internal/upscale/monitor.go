package upscale

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/inkscale/inkscale/internal/home"
)

// DefaultPollInterval is how often the monitor scans output workspaces.
const DefaultPollInterval = 500 * time.Millisecond

// Progress is one incremental completion report.
type Progress struct {
	Completed int
	Total     int
}

// Monitor reports incremental upscale progress by polling batch output
// workspaces for newly appeared files. The external tool exposes no
// progress callback, only files written to disk mid-run, so polling is
// the only observable signal. Progress is advisory: it never gates
// pipeline correctness.
type Monitor struct {
	// Interval between scans. Defaults to DefaultPollInterval.
	Interval time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Monitor) interval() time.Duration {
	if m.Interval > 0 {
		return m.Interval
	}
	return DefaultPollInterval
}

// Watch polls until the expected total is observed or ctx is cancelled
// (the caller cancels once all batch results are in). Each new batch of
// output files is sent to progress as a cumulative count. The progress
// channel is closed on return.
func (m *Monitor) Watch(ctx context.Context, project *home.Project, batchCount, total int, progress chan<- Progress) {
	defer close(progress)

	log := m.logger()
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fresh := 0
			for _, name := range m.scan(project, batchCount) {
				if !seen[name] {
					seen[name] = true
					fresh++
				}
			}
			if fresh > 0 {
				log.Debug("upscale progress", "completed", len(seen), "total", total)
				select {
				case progress <- Progress{Completed: len(seen), Total: total}:
				case <-ctx.Done():
					return
				}
			}
			if len(seen) >= total {
				return
			}
		}
	}
}

// FinalCount re-scans after all supervisors have completed, giving slow
// final file-system writes a short grace period to land before final
// counts are reported.
func (m *Monitor) FinalCount(ctx context.Context, project *home.Project, batchCount, expected int) int {
	var count int
	_ = retry.Do(
		func() error {
			count = len(m.scan(project, batchCount))
			if count < expected {
				return fmt.Errorf("observed %d of %d outputs", count, expected)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(m.interval()),
		retry.LastErrorOnly(true),
	)
	return count
}

// scan returns the distinct output file names across every batch output
// workspace plus the consolidated outputs directory.
func (m *Monitor) scan(project *home.Project, batchCount int) []string {
	dirs := make([]string, 0, batchCount+1)
	for i := 0; i < batchCount; i++ {
		dirs = append(dirs, project.BatchOutputsDir(i))
	}
	dirs = append(dirs, project.OutputsDir())

	seen := make(map[string]bool)
	var names []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // workspace may not exist yet
		}
		for _, e := range entries {
			if e.IsDir() || seen[e.Name()] {
				continue
			}
			seen[e.Name()] = true
			names = append(names, e.Name())
		}
	}
	return names
}
