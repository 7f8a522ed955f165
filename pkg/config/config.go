// Package config provides configuration loading and management for dreg3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Registration parameters
	Registration struct {
		// BlockShape is the target voxel shape of each fixed block
		BlockShape [3]int `yaml:"blockShape"`

		// OverlapFactors give, per axis, the fraction of a block's edge
		// length added as symmetric padding before registration
		OverlapFactors [3]float64 `yaml:"overlapFactors"`

		// Workers specifies how many block tasks run concurrently
		Workers int `yaml:"workers"`
	} `yaml:"registration"`

	// Fusion parameters
	Fusion struct {
		// Blend selects the blending policy for overlapping block
		// transforms: "distance" or "mean"
		Blend string `yaml:"blend"`

		// ScaleFactors scale the fixed spacing elementwise to set the
		// displacement field grid resolution
		ScaleFactors [3]float64 `yaml:"scaleFactors"`
	} `yaml:"fusion"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default registration parameters
	cfg.Registration.BlockShape = [3]int{256, 256, 256}
	cfg.Registration.OverlapFactors = [3]float64{0.1, 0.1, 0.1}
	cfg.Registration.Workers = runtime.NumCPU() // Use all available cores by default

	// Set default fusion parameters
	cfg.Fusion.Blend = "distance"
	cfg.Fusion.ScaleFactors = [3]float64{1.0, 1.0, 1.0}

	// Set default output parameters
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
