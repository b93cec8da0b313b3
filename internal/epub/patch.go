package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/inkscale/inkscale/internal/pages"
)

// Admits extra attributes around the property in either order.
var dctermsModifiedRe = regexp.MustCompile(`(<meta\s[^>]*?property="dcterms:modified"[^>]*>)[^<]*(</meta>)`)

// PatchInPlace copies the original EPUB container into dstPath,
// replacing only the image entries that have an upscaled output. Every
// other entry, including documents, fonts, and the images of pages
// that failed to upscale, is copied byte for byte, so reader-specific
// structure survives untouched. Replaced images keep their original
// entry name and are re-encoded in the entry's own format.
func PatchInPlace(srcPath, dstPath string, records []*pages.Record, geo Geometry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	byLocator := make(map[string]*pages.Record, len(records))
	for _, rec := range records {
		if rec.Upscaled() {
			byLocator[rec.SourceLocator] = rec
		} else {
			logger.Warn("keeping original image for page", "page", rec.PageNumber, "entry", rec.SourceLocator)
		}
	}

	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source epub: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	for _, f := range zr.File {
		if rec, ok := byLocator[f.Name]; ok {
			format, encodable := formatFromName(f.Name)
			if encodable {
				if err := writeReplacedImage(zw, f, rec, geo, format); err != nil {
					return err
				}
				continue
			}
			// The entry's declared media-type (gif, webp, ...) has no
			// matching encoder, so swapping in re-encoded bytes would
			// break the manifest. The original bytes stay.
			logger.Warn("keeping original image for page", "page", rec.PageNumber, "entry", f.Name, "reason", "entry format cannot be re-encoded")
		}

		if isPackageDocument(f.Name) {
			if err := refreshPackageDocument(zw, f); err != nil {
				return err
			}
			continue
		}
		// Raw copy preserves compression, the stored mimetype entry
		// included.
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("failed to copy %s: %w", f.Name, err)
		}
	}

	return nil
}

// writeReplacedImage renders a page's upscaled output in the original
// entry's format and writes it under the original entry name.
func writeReplacedImage(zw *zip.Writer, f *zip.File, rec *pages.Record, geo Geometry, format string) error {
	data, _, _, err := renderPage(rec, geo, format)
	if err != nil {
		return fmt.Errorf("failed to render page %d: %w", rec.PageNumber, err)
	}

	w, err := zw.Create(f.Name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}

// refreshPackageDocument rewrites the OPF with a current
// dcterms:modified timestamp. Entries without the element pass
// through unchanged.
func refreshPackageDocument(zw *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Name, err)
	}

	stamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	data = dctermsModifiedRe.ReplaceAll(data, []byte("${1}"+stamp+"${2}"))

	w, err := zw.Create(f.Name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}

func isPackageDocument(name string) bool {
	return filepath.Ext(name) == ".opf"
}
