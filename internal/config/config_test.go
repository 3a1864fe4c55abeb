package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.DataDir = "/tmp/charts"
	assert.Error(t, cfg.Validate())

	cfg.ManifestURL = "https://example.com/manifest.json"
	assert.NoError(t, cfg.Validate())
}

func TestFilters(t *testing.T) {
	cfg := &Config{FilterPatterns: []string{"**/*.iso"}}
	assert.Equal(t, []string{"**/*.iso"}, cfg.Filters())

	cfg.FilterVideos = true
	filters := cfg.Filters()
	assert.Contains(t, filters, "**/*.iso")
	assert.Contains(t, filters, "**/*.mp4")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := &Config{
		DataDir:     "/tmp/charts",
		ManifestURL: "https://example.com/manifest.json",
		Workers:     6,
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.ManifestURL, loaded.ManifestURL)
	assert.Equal(t, 6, loaded.Workers)
	assert.Equal(t, path, loaded.Path)
}
