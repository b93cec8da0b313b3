package home

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirPaths(t *testing.T) {
	d, err := New("/tmp/inkscale-test")
	if err != nil {
		t.Fatal(err)
	}

	if d.Path() != "/tmp/inkscale-test" {
		t.Errorf("Path() = %q", d.Path())
	}
	if d.ConfigPath() != "/tmp/inkscale-test/config.yaml" {
		t.Errorf("ConfigPath() = %q", d.ConfigPath())
	}
	if d.ProjectsPath() != "/tmp/inkscale-test/projects" {
		t.Errorf("ProjectsPath() = %q", d.ProjectsPath())
	}
}

func TestNewDefaultPath(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(d.Path(), DefaultDirName) {
		t.Errorf("default path %q should end in %q", d.Path(), DefaultDirName)
	}
}

func TestNewProject(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatal(err)
	}

	p, err := d.NewProject("my-comic")
	if err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{p.OriginalDir(), p.ImagesDir()} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}

	if got := p.PagePath(7, "jpg"); filepath.Base(got) != "page_0007.jpg" {
		t.Errorf("PagePath(7) = %q", got)
	}
	if got := p.BatchJobPath(2); got != filepath.Join(p.BatchDir(2), JobFileName) {
		t.Errorf("BatchJobPath(2) = %q", got)
	}
	if !strings.Contains(p.BatchOutputsDir(0), "batch_0") {
		t.Errorf("BatchOutputsDir(0) = %q", p.BatchOutputsDir(0))
	}
}

func TestEnsureBatchDirClearsStaleArtifacts(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.NewProject("book")
	if err != nil {
		t.Fatal(err)
	}

	if err := p.EnsureBatchDir(0); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(p.BatchOutputsDir(0), "4x-page_0001.png")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := p.EnsureBatchDir(0); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale output should have been cleared")
	}
	if fi, err := os.Stat(p.BatchOutputsDir(0)); err != nil || !fi.IsDir() {
		t.Error("batch outputs dir should exist after EnsureBatchDir")
	}
}

func TestCleanup(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p, err := d.NewProject("book")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
		t.Error("project should be removed after Cleanup")
	}
}
