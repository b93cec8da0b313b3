// Package epub assembles the output e-book container. Two strategies:
// patching upscaled images into a verbatim copy of the original
// container (preferred, preserves structure and metadata), or
// synthesizing a minimal page-per-image container from scratch (used
// when there is no original EPUB to patch, e.g. PDF sources).
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/inkscale/inkscale/internal/imaging"
	"github.com/inkscale/inkscale/internal/pages"
)

// Builder synthesizes a fresh EPUB 3 from ordered page records: one
// full-page image per page, simple styling, linear navigation.
type Builder struct {
	meta    *pages.Metadata
	records []*pages.Record
	geo     Geometry
	logger  *slog.Logger
}

// NewBuilder creates a builder over a book's reconciled records.
// meta may be nil (PDF sources); a minimal metadata set is synthesized.
func NewBuilder(meta *pages.Metadata, records []*pages.Record, geo Geometry, logger *slog.Logger) *Builder {
	if meta == nil {
		meta = &pages.Metadata{Language: "en"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ordered := make([]*pages.Record, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PageNumber < ordered[j].PageNumber })

	return &Builder{meta: meta, records: ordered, geo: geo, logger: logger}
}

// Build generates the epub and writes it to the specified path.
func (b *Builder) Build(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return b.WriteTo(f)
}

// WriteTo writes the epub to a writer.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	// 1. mimetype (must be first, uncompressed)
	if err := b.writeMimetype(zw); err != nil {
		return err
	}

	// 2. META-INF/container.xml
	if err := b.writeContainer(zw); err != nil {
		return err
	}

	// 3. Page images (rendered through the geometry policy)
	rendered, err := b.writeImages(zw)
	if err != nil {
		return err
	}

	// 4. OEBPS/content.opf (package document)
	if err := writeEntry(zw, "OEBPS/content.opf", b.generatePackage(rendered)); err != nil {
		return err
	}

	// 5. Navigation (nav.xhtml + NCX for EPUB 2 readers)
	if err := writeEntry(zw, "OEBPS/nav.xhtml", b.generateNavigation()); err != nil {
		return err
	}
	if err := writeEntry(zw, "OEBPS/toc.ncx", b.generateNCX()); err != nil {
		return err
	}

	// 6. Stylesheet
	if err := writeEntry(zw, "OEBPS/styles/style.css", pageStylesheet); err != nil {
		return err
	}

	// 7. Page documents
	for _, pg := range rendered {
		if err := writeEntry(zw, "OEBPS/"+pg.docHref, b.generatePageXHTML(pg)); err != nil {
			return err
		}
	}

	return nil
}

// BuildToBuffer generates the epub and returns it as a byte buffer.
func (b *Builder) BuildToBuffer() (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// renderedPage is one page committed to the output container.
type renderedPage struct {
	record    *pages.Record
	imageHref string
	docHref   string
	width     int
	height    int
	isCover   bool
}

// writeImages renders every page through the geometry policy and writes
// the image entries. A page whose image cannot be rendered at all (even
// the staged fallback) aborts assembly: page count must be preserved.
func (b *Builder) writeImages(zw *zip.Writer) ([]renderedPage, error) {
	ext := imaging.Extension(b.geo.OutputFormat)
	rendered := make([]renderedPage, 0, len(b.records))

	for _, rec := range b.records {
		data, w, h, err := renderPage(rec, b.geo, imaging.NormalizeFormat(b.geo.OutputFormat))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", rec.PageNumber, err)
		}
		if !rec.Upscaled() {
			b.logger.Warn("using original image for page", "page", rec.PageNumber)
		}

		pg := renderedPage{
			record:  rec,
			width:   w,
			height:  h,
			isCover: rec.IsCover,
		}
		if rec.IsCover {
			pg.imageHref = "images/cover." + ext
			pg.docHref = "cover.xhtml"
		} else {
			pg.imageHref = fmt.Sprintf("images/image_%04d.%s", rec.PageNumber, ext)
			pg.docHref = fmt.Sprintf("page_%04d.xhtml", rec.PageNumber)
		}

		if err := writeEntryBytes(zw, "OEBPS/"+pg.imageHref, data); err != nil {
			return nil, err
		}
		rendered = append(rendered, pg)
	}

	return rendered, nil
}

// writeMimetype writes the mimetype file (must be first and uncompressed).
func (b *Builder) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

// writeContainer writes META-INF/container.xml.
func (b *Builder) writeContainer(zw *zip.Writer) error {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	return writeEntry(zw, "META-INF/container.xml", content)
}

// identifier returns the publication identifier, minting one when the
// source carried none.
func (b *Builder) identifier() string {
	if b.meta.Identifier != "" {
		return b.meta.Identifier
	}
	return "urn:uuid:" + uuid.New().String()
}

func writeEntry(zw *zip.Writer, name, content string) error {
	return writeEntryBytes(zw, name, []byte(content))
}

func writeEntryBytes(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
