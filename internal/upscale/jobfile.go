package upscale

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JobFile is the declarative job document consumed by the external
// upscaler: device selector, input file list, output directory, model
// identifier, and integer target scale.
type JobFile struct {
	Device              string   `yaml:"device"`
	InputPath           []string `yaml:"input_path"`
	OutputPath          string   `yaml:"output_path"`
	PretrainedModelName string   `yaml:"pretrained_model_name"`
	TargetScale         int      `yaml:"target_scale"`
}

// WriteJobFile emits the job document for one batch.
func WriteJobFile(path string, batch *Batch, outputsDir, modelName string, scale int) error {
	inputs := make([]string, len(batch.Records))
	for i, rec := range batch.Records {
		inputs[i] = rec.StagedPath
	}

	job := JobFile{
		Device:              "auto",
		InputPath:           inputs,
		OutputPath:          outputsDir,
		PretrainedModelName: modelName,
		TargetScale:         scale,
	}

	data, err := yaml.Marshal(&job)
	if err != nil {
		return fmt.Errorf("failed to marshal job file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	return nil
}

// ReadJobFile parses a previously written job document.
func ReadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var job JobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	return &job, nil
}
