// Package extract walks a source container (EPUB or PDF) and produces
// the ordered sequence of page records the rest of the pipeline runs
// on. Pages are numbered in presentation order: natural page order for
// PDFs, document-flow image order for EPUBs. Manifest order is never
// used for numbering.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/inkscale/inkscale/internal/pages"
)

// ErrNoContent is returned when a container yields zero usable images.
var ErrNoContent = errors.New("no content images found")

// Options configures extraction.
type Options struct {
	// MinEdge excludes images smaller than this in either dimension.
	// Such images are typically decorative glyphs, not content pages.
	MinEdge int

	// OutputFormat and OutputQuality control the staged page encoding.
	OutputFormat  string
	OutputQuality int

	// Logger for progress updates. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Warning records one skipped item and the reason it was skipped.
// Item-level parse failures never abort the book; they are collected
// here and the caller decides what to surface.
type Warning struct {
	Item   string
	Reason error
}

// Result is the output of enumerating one container.
type Result struct {
	// Records are the extracted pages, numbered densely from 1 in
	// presentation order, staged on disk for the external tool.
	Records []*pages.Record

	// Meta holds container metadata. Nil for PDF sources, which carry
	// no analogous structure.
	Meta *pages.Metadata

	// Warnings lists items skipped during enumeration.
	Warnings []Warning
}

// FromFile extracts page images from a source container into imagesDir,
// dispatching on the file extension.
func FromFile(ctx context.Context, path, imagesDir string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return FromEPUB(ctx, path, imagesDir, opts)
	case ".pdf":
		return FromPDF(ctx, path, imagesDir, opts)
	default:
		return nil, fmt.Errorf("unsupported source format: %s", filepath.Ext(path))
	}
}

// MatchReference reports whether a document image reference resolves to
// a container resource. Matching is by file-name suffix containment in
// either direction, which tolerates path-prefix inconsistencies between
// the reference ("../Images/p001.jpg") and the resource ("OEBPS/Images/p001.jpg").
//
// Callers must pair this with a claim-once rule: the first reference to
// match a resource consumes it, guaranteeing a 1:1 mapping.
func MatchReference(refName, resourceName string) bool {
	if refName == "" || resourceName == "" {
		return false
	}
	ref := path.Base(refName)
	res := path.Base(resourceName)
	if ref == "" || ref == "." || res == "" || res == "." {
		return false
	}
	return strings.Contains(res, ref) || strings.Contains(ref, res)
}
