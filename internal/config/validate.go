package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains the configuration surface. Structural typing
// is handled by viper's unmarshal; this catches out-of-range values
// before any batch is launched.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "upscale": {
      "type": "object",
      "properties": {
        "binary": {"type": "string", "minLength": 1},
        "model_name": {"type": "string", "minLength": 1},
        "scale": {"type": "integer", "minimum": 1, "maximum": 8},
        "target_long_edge": {"type": "integer", "minimum": 1},
        "num_processes": {"type": "integer", "minimum": 1},
        "output_format": {"type": "string", "enum": ["JPEG", "jpeg", "jpg", "PNG", "png"]},
        "output_quality": {"type": "integer", "minimum": 1, "maximum": 100},
        "timeout_minutes": {"type": "integer", "minimum": 0},
        "min_page_edge": {"type": "integer", "minimum": 0}
      },
      "required": ["binary", "model_name", "scale"]
    },
    "directories": {
      "type": "object",
      "properties": {
        "input": {"type": "string"},
        "output_suffix": {"type": "string", "minLength": 1}
      }
    }
  },
  "required": ["upscale"]
}`

var compiledSchema = jsonschema.MustCompileString("config.schema.json", configSchema)

// Validate checks a loaded configuration against the embedded schema.
func Validate(cfg *Config) error {
	raw, err := json.Marshal(map[string]any{
		"temp_dir":    cfg.TempDir,
		"directories": map[string]any{"input": cfg.Directories.Input, "output_suffix": cfg.Directories.OutputSuffix},
		"upscale": map[string]any{
			"binary":           cfg.Upscale.Binary,
			"model_name":       cfg.Upscale.ModelName,
			"scale":            cfg.Upscale.Scale,
			"target_long_edge": cfg.Upscale.TargetLongEdge,
			"num_processes":    cfg.Upscale.NumProcesses,
			"output_format":    cfg.Upscale.OutputFormat,
			"output_quality":   cfg.Upscale.OutputQuality,
			"timeout_minutes":  cfg.Upscale.TimeoutMinutes,
			"min_page_edge":    cfg.Upscale.MinPageEdge,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to serialize config for validation: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to deserialize config for validation: %w", err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
