package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inkscale/inkscale/internal/home"
	"github.com/inkscale/inkscale/internal/pages"
	"github.com/inkscale/inkscale/internal/upscale"
)

func testProject(t *testing.T) *home.Project {
	t.Helper()
	d, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.NewProject("book")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mkRecords(t *testing.T, p *home.Project, n int) []*pages.Record {
	t.Helper()
	recs := make([]*pages.Record, n)
	for i := range recs {
		recs[i] = &pages.Record{
			PageNumber:    i + 1,
			SourceLocator: pages.FileName(i+1, "jpg"),
			StagedPath:    p.PagePath(i+1, "jpg"),
		}
	}
	return recs
}

func writeOutput(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("upscaled"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileDecoratedNames(t *testing.T) {
	p := testProject(t)
	records := mkRecords(t, p, 3)
	batches := upscale.Plan(records, 2)

	// Batch 0 holds pages 1-2, batch 1 holds page 3.
	writeOutput(t, p.BatchOutputsDir(0), "4x-page_0001.png")
	writeOutput(t, p.BatchOutputsDir(0), "4x-page_0002.png")
	writeOutput(t, p.BatchOutputsDir(1), "4x-page_0003.png")

	results := []upscale.BatchResult{
		{Batch: batches[0], Success: true},
		{Batch: batches[1], Success: true},
	}

	summary, err := Reconcile(p, results, records, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Matched != 3 || len(summary.Gaps) != 0 {
		t.Fatalf("matched %d with %d gaps, want 3 and 0", summary.Matched, len(summary.Gaps))
	}

	for _, rec := range records {
		if !rec.Upscaled() {
			t.Errorf("page %d missing output path", rec.PageNumber)
			continue
		}
		if _, err := os.Stat(rec.OutputPath); err != nil {
			t.Errorf("page %d output path %s does not exist", rec.PageNumber, rec.OutputPath)
		}
	}

	// Batch workspaces are transient.
	for i := 0; i < 2; i++ {
		if _, err := os.Stat(p.BatchDir(i)); !os.IsNotExist(err) {
			t.Errorf("batch %d workspace should be removed", i)
		}
	}
}

func TestReconcileNumericTokenFallback(t *testing.T) {
	p := testProject(t)
	records := mkRecords(t, p, 1)
	records[0].PageNumber = 7
	records[0].StagedPath = p.PagePath(7, "jpg")
	batches := []*upscale.Batch{{Index: 0, Records: records}}

	// Unknown decoration scheme; only the numeric token survives.
	writeOutput(t, p.BatchOutputsDir(0), "upscaled-PAGE-0007-final.png")

	summary, err := Reconcile(p, []upscale.BatchResult{{Batch: batches[0], Success: true}}, records, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Matched != 1 {
		t.Fatalf("numeric token fallback did not match page 7")
	}
	if filepath.Base(records[0].OutputPath) != "upscaled-PAGE-0007-final.png" {
		t.Errorf("output path = %q", records[0].OutputPath)
	}
}

func TestReconcileGapsForFailedBatch(t *testing.T) {
	p := testProject(t)
	records := mkRecords(t, p, 4)
	batches := upscale.Plan(records, 2)

	// Batch 0 (pages 1-2) succeeded; batch 1 (pages 3-4) failed and
	// produced nothing.
	writeOutput(t, p.BatchOutputsDir(0), "4x-page_0001.png")
	writeOutput(t, p.BatchOutputsDir(0), "4x-page_0002.png")
	if err := os.MkdirAll(p.BatchOutputsDir(1), 0o755); err != nil {
		t.Fatal(err)
	}

	results := []upscale.BatchResult{
		{Batch: batches[0], Success: true},
		{Batch: batches[1], Success: false},
	}

	summary, err := Reconcile(p, results, records, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Matched != 2 {
		t.Errorf("matched %d, want 2", summary.Matched)
	}
	if len(summary.Gaps) != 2 || summary.Gaps[0] != 3 || summary.Gaps[1] != 4 {
		t.Errorf("gaps = %v, want [3 4]", summary.Gaps)
	}
	for _, rec := range records[2:] {
		if rec.Upscaled() {
			t.Errorf("page %d should be a gap", rec.PageNumber)
		}
	}
}

func TestReconcileStaleOutputReplaced(t *testing.T) {
	p := testProject(t)
	records := mkRecords(t, p, 1)
	batches := []*upscale.Batch{{Index: 0, Records: records}}

	// A stale artifact with the same name already sits in the
	// consolidated directory; the fresh batch result must replace it.
	writeOutput(t, p.OutputsDir(), "4x-page_0001.png")
	stale := filepath.Join(p.OutputsDir(), "4x-page_0001.png")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeOutput(t, p.BatchOutputsDir(0), "4x-page_0001.png")

	_, err := Reconcile(p, []upscale.BatchResult{{Batch: batches[0], Success: true}}, records, nil)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(stale)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "upscaled" {
		t.Errorf("stale output not replaced: %q", data)
	}
}
