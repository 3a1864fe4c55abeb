// Package config holds the persisted CLI configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/noahbaxter/chartsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".chartsync", "config.json")
	DefaultDataDir    = filepath.Join(home, "ChartSync")
)

// DefaultVideoPatterns are the content filters applied when video
// filtering is on. Background videos dominate download size while adding
// nothing to play.
var DefaultVideoPatterns = []string{
	"**/*.mp4", "**/*.avi", "**/*.webm", "**/*.mpeg", "**/*.mpg", "**/*.mov", "**/*.vob", "**/*.m2ts",
}

type Config struct {
	DataDir        string   `json:"data_dir"`
	ManifestURL    string   `json:"manifest_url"`
	APIKey         string   `json:"api_key,omitempty"`
	Workers        int      `json:"workers,omitempty"`
	MaxAttempts    int      `json:"max_attempts,omitempty"`
	FilterVideos   bool     `json:"filter_videos"`
	FilterPatterns []string `json:"filter_patterns,omitempty"`
	DeleteFiltered bool     `json:"delete_filtered"`
	Path           string   `json:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.ManifestURL == "" {
		return fmt.Errorf("config: manifest_url is required")
	}
	return nil
}

// Filters returns the effective filter patterns: explicit patterns plus
// the video defaults when video filtering is enabled.
func (c *Config) Filters() []string {
	patterns := append([]string(nil), c.FilterPatterns...)
	if c.FilterVideos {
		patterns = append(patterns, DefaultVideoPatterns...)
	}
	return patterns
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	return &cfg, nil
}
