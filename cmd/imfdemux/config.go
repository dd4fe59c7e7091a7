package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML sidecar configuration (spec §6). It is a
// deliberately small stand-in for the teacher's reflective, multi-plugin
// config engine (see DESIGN.md): one struct, one YAML file, flags override
// the file.
type fileConfig struct {
	CPL       string `yaml:"cpl"`
	AssetMaps string `yaml:"assetmaps"`
	LogLevel  string `yaml:"log_level"`
}

// loadConfig reads path as YAML and fills in any of cfg's fields that the
// command line left at their zero/default value.
func loadConfig(path string, cfg *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	var fromFile fileConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.CPL == "" {
		cfg.CPL = fromFile.CPL
	}
	if cfg.AssetMaps == "" {
		cfg.AssetMaps = fromFile.AssetMaps
	}
	if cfg.LogLevel == "info" && fromFile.LogLevel != "" {
		cfg.LogLevel = fromFile.LogLevel
	}
	return nil
}
