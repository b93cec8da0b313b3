// Package imaging provides the stateless raster primitives used by the
// pipeline: decoding, RGB flattening, resampling, and encoding. The
// actual super-resolution work is done by the external tool; everything
// here is plain geometry and codec plumbing.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode decodes image bytes in any registered format and returns the
// image plus its format name ("jpeg", "png", "webp", ...).
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Dimensions reads just the image header and returns pixel dimensions.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Load reads and decodes an image file.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// FlattenToRGB composites an image onto a white background, discarding
// any alpha channel. Needed before JPEG encoding.
func FlattenToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

// CalculateOptimalSize scales (width, height) so the long edge equals
// targetLongEdge, preserving aspect ratio with integer truncation.
func CalculateOptimalSize(width, height, targetLongEdge int) (int, int) {
	longEdge := width
	if height > longEdge {
		longEdge = height
	}
	scale := float64(targetLongEdge) / float64(longEdge)
	return int(float64(width) * scale), int(float64(height) * scale)
}

// Resize resamples an image to the given dimensions using Catmull-Rom
// interpolation.
func Resize(img image.Image, width, height int) image.Image {
	if b := img.Bounds(); b.Dx() == width && b.Dy() == height {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return out
}

// Encode serializes an image in the requested output format. Supported
// formats are "jpeg" and "png"; quality applies to JPEG only.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch NormalizeFormat(format) {
	case "jpeg":
		if err := jpeg.Encode(&buf, FlattenToRGB(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}

// NormalizeFormat maps format spellings ("JPEG", "jpg") onto the
// canonical codec name.
func NormalizeFormat(format string) string {
	f := strings.ToLower(format)
	if f == "jpg" {
		return "jpeg"
	}
	return f
}

// Extension returns the file extension for an output format ("jpg" for
// JPEG, the format name otherwise).
func Extension(format string) string {
	if NormalizeFormat(format) == "jpeg" {
		return "jpg"
	}
	return NormalizeFormat(format)
}

// MediaType returns the MIME type for an output format.
func MediaType(format string) string {
	return "image/" + NormalizeFormat(format)
}
