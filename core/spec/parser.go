package spec

import (
	"fmt"
	"os"
	"path/filepath"

	"llm-finetune/core/models"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a launch request leaves the knob unset
const (
	DefaultBatchSize = 1
	DefaultMaxLength = 512
)

// TrainingConfig is the YAML document handed to the external trainer.
// Field names match the keys the trainer reads.
type TrainingConfig struct {
	DatasetPath  string  `yaml:"dataset_path" json:"dataset_path"`
	BaseModel    string  `yaml:"base_model" json:"base_model"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	OutputDir    string  `yaml:"output_dir" json:"output_dir"`
	BatchSize    int     `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
	MaxLength    int     `yaml:"max_length,omitempty" json:"max_length,omitempty"`
}

// FromParams builds a config document from resolved launch parameters.
// Paths are normalized to forward slashes.
func FromParams(p models.TrainingParams) *TrainingConfig {
	cfg := &TrainingConfig{
		DatasetPath:  filepath.ToSlash(p.DatasetPath),
		BaseModel:    p.BaseModel,
		Epochs:       p.Epochs,
		LearningRate: p.LearningRate,
		OutputDir:    filepath.ToSlash(p.OutputDir),
		BatchSize:    p.BatchSize,
		MaxLength:    p.MaxLength,
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	return cfg
}

// Render marshals the config document
func (c *TrainingConfig) Render() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render training config: %w", err)
	}
	return out, nil
}

// WriteFile renders the config document to path
func (c *TrainingConfig) WriteFile(path string) error {
	out, err := c.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write training config: %w", err)
	}
	return nil
}

// ParseTrainingConfig parses a YAML training config document
func ParseTrainingConfig(data []byte) (*TrainingConfig, error) {
	var cfg TrainingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.DatasetPath == "" {
		return nil, fmt.Errorf("training config is missing dataset_path")
	}
	if cfg.BaseModel == "" {
		return nil, fmt.Errorf("training config is missing base_model")
	}
	return &cfg, nil
}

// LoadTrainingConfig reads and parses the config document at path
func LoadTrainingConfig(path string) (*TrainingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTrainingConfig(data)
}
