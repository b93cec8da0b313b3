package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestCalculateOptimalSize(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		target         int
		wantW, wantH   int
	}{
		{"landscape downscale", 3000, 2000, 1872, 1872, 1248},
		{"portrait downscale", 2000, 3000, 1872, 1248, 1872},
		{"square", 2000, 2000, 1000, 1000, 1000},
		{"upscale", 936, 624, 1872, 1872, 1248},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateOptimalSize(tt.width, tt.height, tt.target)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("CalculateOptimalSize(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.width, tt.height, tt.target, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDecode(t *testing.T) {
	for _, format := range []string{"jpeg", "png", "JPEG", "jpg"} {
		data, err := Encode(testImage(20, 10), format, 90)
		if err != nil {
			t.Fatalf("Encode(%s): %v", format, err)
		}
		w, h, err := Dimensions(data)
		if err != nil {
			t.Fatalf("Dimensions(%s): %v", format, err)
		}
		if w != 20 || h != 10 {
			t.Errorf("%s round trip: got %dx%d, want 20x10", format, w, h)
		}
	}

	if _, err := Encode(testImage(4, 4), "tiff", 90); err == nil {
		t.Error("Encode(tiff): want unsupported format error")
	}
}

func TestResize(t *testing.T) {
	out := Resize(testImage(100, 50), 50, 25)
	if b := out.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("Resize: got %dx%d, want 50x25", b.Dx(), b.Dy())
	}

	// Same dimensions short-circuits.
	src := testImage(10, 10)
	if Resize(src, 10, 10) != src {
		t.Error("Resize to identical dimensions should return the input")
	}
}

func TestFlattenToRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	// Fully transparent pixel should come out white.
	flat := FlattenToRGB(img)
	r, g, b, _ := flat.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("transparent pixel flattened to (%d, %d, %d), want white", r, g, b)
	}
}

func TestFormatHelpers(t *testing.T) {
	if Extension("JPEG") != "jpg" || Extension("png") != "png" {
		t.Error("Extension mapping wrong")
	}
	if MediaType("JPEG") != "image/jpeg" {
		t.Error("MediaType mapping wrong")
	}
}
