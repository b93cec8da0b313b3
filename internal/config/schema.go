package config

import "runtime"

// Config holds inkscale configuration.
// Stored at: {home}/config.yaml
type Config struct {
	// TempDir is the scratch root for per-book project workspaces.
	// Empty means the inkscale home directory is used.
	TempDir     string         `mapstructure:"temp_dir" yaml:"temp_dir"`
	Directories DirectoriesCfg `mapstructure:"directories" yaml:"directories"`
	Upscale     UpscaleCfg     `mapstructure:"upscale" yaml:"upscale"`
	EPUB        EPUBCfg        `mapstructure:"epub" yaml:"epub"`
}

// DirectoriesCfg configures batch-of-books input and output locations.
type DirectoriesCfg struct {
	// Input is the directory scanned for source books (*.epub, *.pdf).
	Input string `mapstructure:"input" yaml:"input"`
	// OutputSuffix is appended to the input directory name to form the
	// output directory (e.g. "comics" -> "comics_upscale").
	OutputSuffix string `mapstructure:"output_suffix" yaml:"output_suffix"`
}

// UpscaleCfg configures the external super-resolution tool.
type UpscaleCfg struct {
	// Binary is the upscaler executable path or name (resolved on PATH).
	Binary string `mapstructure:"binary" yaml:"binary"`
	// ModelName selects the pretrained model passed in the job file.
	ModelName string `mapstructure:"model_name" yaml:"model_name"`
	// Scale is the integer target scale factor.
	Scale int `mapstructure:"scale" yaml:"scale"`
	// TargetLongEdge caps page image long edges in e-ink mode.
	TargetLongEdge int `mapstructure:"target_long_edge" yaml:"target_long_edge"`
	// NumProcesses bounds concurrent upscaler invocations and sets the
	// batch count.
	NumProcesses int `mapstructure:"num_processes" yaml:"num_processes"`
	// OutputFormat is the staged/assembled raster format: JPEG or PNG.
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	// OutputQuality is the JPEG quality (1-100).
	OutputQuality int `mapstructure:"output_quality" yaml:"output_quality"`
	// TimeoutMinutes is the per-batch wall-clock limit. 0 disables it.
	TimeoutMinutes int `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
	// MinPageEdge excludes images smaller than this in either dimension
	// (decorative glyphs, not content pages).
	MinPageEdge int `mapstructure:"min_page_edge" yaml:"min_page_edge"`
}

// EPUBCfg configures output container assembly.
type EPUBCfg struct {
	// ResizeToOriginal resamples upscaled pages back to their original
	// pixel dimensions (quality gain only, geometry preserved).
	ResizeToOriginal bool `mapstructure:"resize_to_original" yaml:"resize_to_original"`
	// CreateNew forces synthesizing a fresh container instead of
	// patching the original in place.
	CreateNew bool `mapstructure:"create_new" yaml:"create_new"`
	// CreateEink enables the long-edge geometry cap for e-ink targets.
	CreateEink bool `mapstructure:"create_eink" yaml:"create_eink"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Directories: DirectoriesCfg{
			OutputSuffix: "_upscale",
		},
		Upscale: UpscaleCfg{
			Binary:         "Final2x-core",
			ModelName:      "RealESRGAN",
			Scale:          4,
			TargetLongEdge: 1872,
			NumProcesses:   runtime.NumCPU(),
			OutputFormat:   "JPEG",
			OutputQuality:  95,
			MinPageEdge:    100,
		},
		EPUB: EPUBCfg{
			CreateEink: true,
		},
	}
}
