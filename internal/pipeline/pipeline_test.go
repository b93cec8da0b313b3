package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkscale/inkscale/internal/config"
	"github.com/inkscale/inkscale/internal/home"
	"github.com/inkscale/inkscale/internal/upscale"
)

const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="pub-id">urn:uuid:42</dc:identifier>
    <dc:title>Pipeline Fixture</dc:title>
    <dc:language>en</dc:language>
    <meta property="dcterms:modified">2020-06-01T00:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="page1" href="page1.xhtml" media-type="application/xhtml+xml"/>
    <item id="img1" href="img/p1.png" media-type="image/png"/>
    <item id="img2" href="img/p2.png" media-type="image/png"/>
  </manifest>
  <spine>
    <itemref idref="page1"/>
  </spine>
</package>`

const testPageXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<body>
  <img src="img/p1.png"/>
  <img src="img/p2.png"/>
</body>
</html>`

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFixtureEPUB(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	mt.Write([]byte("application/epub+zip"))

	entries := []struct {
		name string
		data []byte
	}{
		{"META-INF/container.xml", []byte(testContainerXML)},
		{"OEBPS/content.opf", []byte(testOPF)},
		{"OEBPS/page1.xhtml", []byte(testPageXHTML)},
		{"OEBPS/img/p1.png", testPNG(t, 64, 48)},
		{"OEBPS/img/p2.png", testPNG(t, 48, 64)},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(e.data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

// fakeUpscaler copies every job input into the batch outputs directory
// under a decorated name, mimicking the external tool's contract.
func fakeUpscaler(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
[ "$1" = "--YAML" ] || exit 2
out="$(dirname "$2")/outputs"
grep '^ *- ' "$2" | sed 's/^ *- //' | while read -r f; do
  cp "$f" "$out/4x-$(basename "$f")"
done
exit 0
`
	path := filepath.Join(t.TempDir(), "fake-upscaler")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testPipeline(t *testing.T, inputDir string) *Pipeline {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Directories.Input = inputDir
	cfg.Upscale.Binary = fakeUpscaler(t)
	cfg.Upscale.NumProcesses = 2
	cfg.Upscale.MinPageEdge = 10
	cfg.Upscale.OutputFormat = "png"

	d, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, d, logger)
}

func TestProcessBook(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	src := filepath.Join(inputDir, "fixture.epub")
	writeFixtureEPUB(t, src)

	p := testPipeline(t, inputDir)
	result, err := p.ProcessBook(context.Background(), src, outputDir)
	if err != nil {
		t.Fatalf("ProcessBook: %v", err)
	}

	if result.Pages != 2 || result.Upscaled != 2 || len(result.Gaps) != 0 {
		t.Errorf("result = pages %d upscaled %d gaps %v", result.Pages, result.Upscaled, result.Gaps)
	}

	zr, err := zip.OpenReader(result.Output)
	if err != nil {
		t.Fatalf("output not a readable container: %v", err)
	}
	defer zr.Close()

	if zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Error("mimetype must stay first and stored")
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/page1.xhtml", "OEBPS/img/p1.png", "OEBPS/img/p2.png"} {
		if !names[want] {
			t.Errorf("output missing entry %s", want)
		}
	}

	// Project workspaces are removed after a successful run.
	projects, err := os.ReadDir(p.home.ProjectsPath())
	if err == nil && len(projects) != 0 {
		t.Errorf("workspace left behind: %v", projects)
	}
}

func TestProcessBookPartialFailure(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	src := filepath.Join(inputDir, "fixture.epub")
	writeFixtureEPUB(t, src)

	p := testPipeline(t, inputDir)

	// The batch holding page 2 fails; the other succeeds. With two
	// batches over two pages, each batch holds exactly one page.
	script := `#!/bin/sh
if grep -q page_0002 "$2"; then
  echo "CUDA out of memory" >&2
  exit 1
fi
out="$(dirname "$2")/outputs"
grep '^ *- ' "$2" | sed 's/^ *- //' | while read -r f; do
  cp "$f" "$out/4x-$(basename "$f")"
done
exit 0
`
	bin := filepath.Join(t.TempDir(), "flaky-upscaler")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	flaky := *p.config()
	flaky.Upscale.Binary = bin
	p.UpdateConfig(&flaky)

	result, err := p.ProcessBook(context.Background(), src, outputDir)
	if err != nil {
		t.Fatalf("partial failure must not fail the book: %v", err)
	}
	if result.Upscaled != 1 || len(result.Gaps) != 1 || result.Gaps[0] != 2 {
		t.Errorf("result = upscaled %d gaps %v, want 1 upscaled and gap [2]", result.Upscaled, result.Gaps)
	}

	// The gap page's entry survives byte-identical to the original.
	readEntry := func(path, name string) []byte {
		zr, err := zip.OpenReader(path)
		if err != nil {
			t.Fatal(err)
		}
		defer zr.Close()
		for _, f := range zr.File {
			if f.Name != name {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatal(err)
			}
			return data
		}
		t.Fatalf("entry %s missing in %s", name, path)
		return nil
	}
	orig := readEntry(src, "OEBPS/img/p2.png")
	patched := readEntry(result.Output, "OEBPS/img/p2.png")
	if !bytes.Equal(orig, patched) {
		t.Error("gap page must keep the original bytes")
	}
}

func TestUpdateConfigAppliesToNextBook(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	src := filepath.Join(inputDir, "fixture.epub")
	writeFixtureEPUB(t, src)

	p := testPipeline(t, inputDir)
	good := p.config()

	broken := *good
	broken.Upscale.Binary = "no-such-upscaler-binary"
	p.UpdateConfig(&broken)

	if _, err := p.ProcessBook(context.Background(), src, outputDir); !errors.Is(err, upscale.ErrBinaryNotFound) {
		t.Fatalf("got %v, want ErrBinaryNotFound under the broken config", err)
	}

	// A reloaded config takes effect on the next book.
	p.UpdateConfig(good)
	if _, err := p.ProcessBook(context.Background(), src, outputDir); err != nil {
		t.Fatalf("ProcessBook after reload: %v", err)
	}
}

func TestProcessDirectory(t *testing.T) {
	inputDir := t.TempDir()
	writeFixtureEPUB(t, filepath.Join(inputDir, "good.epub"))
	// Garbage container: extraction fails, the run continues.
	if err := os.WriteFile(filepath.Join(inputDir, "bad.epub"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := testPipeline(t, inputDir)
	stats, err := p.ProcessDirectory(context.Background())
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}

	if stats.Total != 2 || stats.Processed != 1 || len(stats.Failed) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Failed[0] != "bad.epub" {
		t.Errorf("failed book = %q", stats.Failed[0])
	}

	outputDir := inputDir + "_upscale"
	if _, err := os.Stat(filepath.Join(outputDir, "good.epub")); err != nil {
		t.Errorf("output missing: %v", err)
	}

	// A second run skips the processed book.
	stats, err = p.ProcessDirectory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Processed != 0 {
		t.Errorf("rerun stats = %+v", stats)
	}
}
