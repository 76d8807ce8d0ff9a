package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainviewer/internal/models"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "brainviewer.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://imaging.local:5000"
	cfg.API.ExportTimeout = 90 * time.Second
	cfg.Viewer.Colormap = "viridis"
	cfg.Scene.PointCap = 1200

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://imaging.local:5000", loaded.API.BaseURL)
	assert.Equal(t, 90*time.Second, loaded.API.ExportTimeout)
	assert.Equal(t, 1200, loaded.Scene.PointCap)
	assert.Equal(t, models.Viridis, loaded.DisplaySettings().Colormap)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("viewer:\n  gridSpacing: 25\napi:\n  exportTimeout: 3m\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Viewer.GridSpacing)
	assert.Equal(t, 3*time.Minute, cfg.API.ExportTimeout)
	assert.Equal(t, 5000, cfg.Scene.PointCap)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"grid spacing", "viewer:\n  gridSpacing: 0\n"},
		{"colormap", "viewer:\n  colormap: plasma\n"},
		{"point cap", "scene:\n  pointCap: -1\n"},
		{"distance range", "scene:\n  minDistance: 50\n  maxDistance: 20\n"},
		{"malformed", "viewer: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultDisplaySettingsUseSentinelWindow(t *testing.T) {
	ds := DefaultConfig().DisplaySettings()
	assert.Equal(t, models.DefaultDisplaySettings(), ds)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
