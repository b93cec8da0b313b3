// Package home manages the inkscale home directory and the transient
// per-book project workspaces used by the pipeline.
package home

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirName is the default name for the inkscale home directory.
	DefaultDirName = ".inkscale"

	// ProjectsDirName is the subdirectory holding per-book workspaces.
	ProjectsDirName = "projects"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// JobFileName is the per-batch job file consumed by the upscaler.
	JobFileName = "job.yaml"
)

// Dir represents the inkscale home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.inkscale).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ProjectsPath returns the directory holding per-book workspaces.
func (d *Dir) ProjectsPath() string {
	return filepath.Join(d.path, ProjectsDirName)
}

// EnsureExists creates the home directory and subdirectories if they
// don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.ProjectsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create projects directory: %w", err)
	}
	return nil
}

// NewProject creates a fresh timestamped workspace for one source book
// and its original/ and images/ subdirectories.
func (d *Dir) NewProject(sourceStem string) (*Project, error) {
	name := fmt.Sprintf("%s_%s", sourceStem, time.Now().Format("20060102_150405"))
	p := &Project{path: filepath.Join(d.ProjectsPath(), name)}

	for _, sub := range []string{p.OriginalDir(), p.ImagesDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create project directory %s: %w", sub, err)
		}
	}
	return p, nil
}

// Project is a per-book workspace:
//
//	<project>/original/             verbatim copy of the source file
//	<project>/images/               extracted page images
//	<project>/upscaled/batch_<i>/   per-batch job file and outputs/
//	<project>/upscaled/outputs/     consolidated upscaler outputs
type Project struct {
	path string
}

// Path returns the project root.
func (p *Project) Path() string {
	return p.path
}

// OriginalDir returns the directory holding the copied source file.
func (p *Project) OriginalDir() string {
	return filepath.Join(p.path, "original")
}

// OriginalFile returns the path for the copied source file.
func (p *Project) OriginalFile(name string) string {
	return filepath.Join(p.OriginalDir(), name)
}

// ImagesDir returns the directory for extracted page images.
func (p *Project) ImagesDir() string {
	return filepath.Join(p.path, "images")
}

// PagePath returns the staged path for a page image.
// Page numbers are 1-indexed.
func (p *Project) PagePath(pageNum int, ext string) string {
	return filepath.Join(p.ImagesDir(), fmt.Sprintf("page_%04d.%s", pageNum, ext))
}

// UpscaledDir returns the root of the upscaler workspace.
func (p *Project) UpscaledDir() string {
	return filepath.Join(p.path, "upscaled")
}

// BatchDir returns the workspace for one batch.
func (p *Project) BatchDir(batchIdx int) string {
	return filepath.Join(p.UpscaledDir(), fmt.Sprintf("batch_%d", batchIdx))
}

// BatchJobPath returns the job file path for one batch.
func (p *Project) BatchJobPath(batchIdx int) string {
	return filepath.Join(p.BatchDir(batchIdx), JobFileName)
}

// BatchOutputsDir returns the output directory the external tool writes
// into for one batch.
func (p *Project) BatchOutputsDir(batchIdx int) string {
	return filepath.Join(p.BatchDir(batchIdx), "outputs")
}

// OutputsDir returns the consolidated output directory batches are
// merged into after the external tool completes.
func (p *Project) OutputsDir() string {
	return filepath.Join(p.UpscaledDir(), "outputs")
}

// EnsureBatchDir creates (or recreates, clearing stale artifacts from a
// previous run) the workspace for one batch.
func (p *Project) EnsureBatchDir(batchIdx int) error {
	dir := p.BatchDir(batchIdx)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear batch directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(p.BatchOutputsDir(batchIdx), 0o755); err != nil {
		return fmt.Errorf("failed to create batch directory %s: %w", dir, err)
	}
	return nil
}

// EnsureOutputsDir creates the consolidated outputs directory.
func (p *Project) EnsureOutputsDir() error {
	return os.MkdirAll(p.OutputsDir(), 0o755)
}

// Cleanup removes the entire project workspace.
func (p *Project) Cleanup() error {
	return os.RemoveAll(p.path)
}
