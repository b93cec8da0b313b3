package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/inkscale/inkscale/internal/imaging"
	"github.com/inkscale/inkscale/internal/pages"
)

// renderDPI is the rasterization resolution for PDF pages.
const renderDPI = "300"

// FromPDF rasterizes every page of a fixed-layout PDF in natural page
// order. Page count comes from pdfcpu; rendering is delegated to
// pdftoppm (poppler-utils), one invocation per page, bounded by CPU
// parallelism. PDFs carry no cover marker and no container metadata,
// so Meta is nil and no page is flagged as cover.
func FromPDF(ctx context.Context, pdfPath, imagesDir string, opts Options) (*Result, error) {
	log := opts.logger()

	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%s: %w", pdfPath, ErrNoContent)
	}

	log.Debug("rendering PDF", "file", filepath.Base(pdfPath), "pages", pageCount)

	type render struct {
		page int
		data []byte
		err  error
	}

	maxWorkers := runtime.NumCPU()
	results := make(chan render, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageInPDF int) {
			defer func() { <-sem }() // release

			data, err := renderPDFPage(ctx, pdfPath, pageInPDF)
			results <- render{page: pageInPDF, data: data, err: err}
		}(page)
	}

	rendered := make([]render, 0, pageCount)
	result := &Result{}
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			locator := pdfPageLocator(pdfPath, r.page)
			result.Warnings = append(result.Warnings, Warning{Item: locator, Reason: r.err})
			log.Warn("skipping page", "item", locator, "error", r.err)
			continue
		}
		rendered = append(rendered, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Numbering is assigned after collection so skipped renders never
	// leave holes in the range.
	sort.Slice(rendered, func(i, j int) bool { return rendered[i].page < rendered[j].page })

	for i, r := range rendered {
		pageNum := i + 1
		rec, err := stagePDFPage(r.data, pdfPath, r.page, imagesDir, pageNum, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to stage page %d: %w", r.page, err)
		}
		result.Records = append(result.Records, rec)
	}

	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%s: %w", pdfPath, ErrNoContent)
	}

	log.Info("PDF extraction complete", "pages", len(result.Records), "skipped", len(result.Warnings))
	return result, nil
}

// renderPDFPage renders a single page using pdftoppm (poppler-utils)
// and returns the PNG bytes.
func renderPDFPage(ctx context.Context, pdfPath string, pageInPDF int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "inkscale-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", pageInPDF)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", renderDPI,
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// stagePDFPage re-encodes a rendered page into the configured output
// format and writes it under its canonical page file name.
func stagePDFPage(pngData []byte, pdfPath string, pageInPDF int, imagesDir string, pageNum int, opts Options) (*pages.Record, error) {
	img, _, err := imaging.Decode(pngData)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	encoded, err := imaging.Encode(img, opts.OutputFormat, opts.OutputQuality)
	if err != nil {
		return nil, err
	}

	staged := filepath.Join(imagesDir, pages.FileName(pageNum, imaging.Extension(opts.OutputFormat)))
	if err := os.WriteFile(staged, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write staged page: %w", err)
	}

	return &pages.Record{
		PageNumber:    pageNum,
		SourceLocator: pdfPageLocator(pdfPath, pageInPDF),
		StagedPath:    staged,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
	}, nil
}

func pdfPageLocator(pdfPath string, pageInPDF int) string {
	return fmt.Sprintf("%s#page=%d", filepath.Base(pdfPath), pageInPDF)
}
