// Package upscale plans batches of page images and supervises the
// external super-resolution tool that processes them. The tool is an
// opaque batch transformer: it reads a declarative job file, writes
// upscaled files into a per-batch output directory, and reports only an
// exit code.
package upscale

import "github.com/inkscale/inkscale/internal/pages"

// Batch is an immutable partition of page records assigned to one
// external-process invocation. Each batch owns a private workspace
// (job file plus outputs directory) because the tool's invocation
// contract is directory-scoped and concurrent invocations must not
// share output namespaces.
type Batch struct {
	Index   int
	Records []*pages.Record
}

// Plan partitions records into at most targetCount contiguous batches
// in page-number order. Batch sizes differ by at most one; a
// zero-record input yields zero batches.
func Plan(records []*pages.Record, targetCount int) []*Batch {
	if len(records) == 0 {
		return nil
	}
	if targetCount < 1 {
		targetCount = 1
	}
	if targetCount > len(records) {
		targetCount = len(records)
	}

	base := len(records) / targetCount
	extra := len(records) % targetCount

	batches := make([]*Batch, 0, targetCount)
	start := 0
	for i := 0; i < targetCount; i++ {
		size := base
		if i < extra {
			size++
		}
		batches = append(batches, &Batch{
			Index:   i,
			Records: records[start : start+size],
		})
		start += size
	}
	return batches
}
