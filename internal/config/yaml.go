package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a UserConfig from a YAML file. Used by the CLI to import
// configuration fragments (the canonical on-disk format stays JSON).
func LoadYAML(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read yaml config: %w", err)
	}

	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml config: %w", err)
	}
	return &cfg, nil
}

// Merge overlays non-nil sub-configs from other onto c.
func (c *UserConfig) Merge(other *UserConfig) {
	if other == nil {
		return
	}
	if other.Embedding != nil {
		c.Embedding = other.Embedding
	}
	if other.Index != nil {
		c.Index = other.Index
	}
	if other.Memory != nil {
		c.Memory = other.Memory
	}
	if other.Logging != nil {
		c.Logging = other.Logging
	}
}
