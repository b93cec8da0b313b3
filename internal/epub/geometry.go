package epub

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/inkscale/inkscale/internal/imaging"
	"github.com/inkscale/inkscale/internal/pages"
)

// Geometry controls per-page resampling at assembly time.
type Geometry struct {
	// ResizeToOriginal resamples the upscaled image back to the page's
	// extraction-time dimensions: geometry preserved, quality gained.
	ResizeToOriginal bool
	// TargetLongEdge caps the long edge for e-ink targets. Zero
	// disables the cap. Ignored when ResizeToOriginal is set.
	TargetLongEdge int
	// OutputFormat and OutputQuality control page encoding.
	OutputFormat  string
	OutputQuality int
}

// renderPage loads a page's best available image (upscaled output, or
// the staged original for reconciliation gaps), applies the geometry
// policy, and encodes it in the requested format.
func renderPage(rec *pages.Record, geo Geometry, format string) (data []byte, width, height int, err error) {
	srcPath := rec.OutputPath
	if !rec.Upscaled() {
		srcPath = rec.StagedPath
	}

	img, err := imaging.Load(srcPath)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("page %d: %w", rec.PageNumber, err)
	}

	bounds := img.Bounds()
	width, height = bounds.Dx(), bounds.Dy()

	switch {
	case geo.ResizeToOriginal && rec.Width > 0 && rec.Height > 0:
		width, height = rec.Width, rec.Height
	case geo.TargetLongEdge > 0 && max(width, height) > geo.TargetLongEdge:
		width, height = imaging.CalculateOptimalSize(width, height, geo.TargetLongEdge)
	}

	data, err = imaging.Encode(imaging.Resize(img, width, height), format, geo.OutputQuality)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("page %d: %w", rec.PageNumber, err)
	}
	return data, width, height, nil
}

// formatFromName derives an encode format from a file extension.
// Returns false when the extension names no codec this package can
// encode (gif, webp, bmp); re-encoding such an entry in another format
// would contradict the media-type its manifest declares.
func formatFromName(name string) (string, bool) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "jpg", "jpeg":
		return "jpeg", true
	case "png":
		return "png", true
	default:
		return "", false
	}
}
