// Package config provides configuration loading and management for niftinrrd.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Display parameters
	Display struct {
		// Scale is the integer zoom applied to rendered slices
		Scale int `yaml:"scale"`

		// PlotWidth and PlotHeight are the central-line plot size in inches
		PlotWidth  float64 `yaml:"plotWidth"`
		PlotHeight float64 `yaml:"plotHeight"`
	} `yaml:"display"`

	// Mask parameters
	Mask struct {
		// ThresholdDivisor sets the working mask cutoff at max/ThresholdDivisor
		ThresholdDivisor float64 `yaml:"thresholdDivisor"`
	} `yaml:"mask"`

	// Output parameters
	Output struct {
		// FileName is the converted file written next to the NRRD header
		FileName string `yaml:"fileName"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Recent holds the last used input paths
	Recent struct {
		NRRD  string `yaml:"nrrd"`
		NIfTI string `yaml:"nifti"`
		ROI   string `yaml:"roi"`
	} `yaml:"recent"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Display.Scale = 2
	cfg.Display.PlotWidth = 8
	cfg.Display.PlotHeight = 4

	cfg.Mask.ThresholdDivisor = 100

	cfg.Output.FileName = "newfile.nrrd"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Remember records the inputs of a successful run; empty paths are ignored.
func (c *Config) Remember(nrrdPath, niftiPath, roiPath string) {
	if nrrdPath != "" {
		c.Recent.NRRD = nrrdPath
	}
	if niftiPath != "" {
		c.Recent.NIfTI = niftiPath
	}
	if roiPath != "" {
		c.Recent.ROI = roiPath
	}
}
