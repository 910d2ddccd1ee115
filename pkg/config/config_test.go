package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermopct/internal/models"
	"thermopct/pkg/coldsub"
	"thermopct/pkg/decompose"
	"thermopct/pkg/normalize"
	"thermopct/pkg/region"
	"thermopct/pkg/video"
	"thermopct/pkg/visualization"
)

func TestDefaultConfigValidates(t *testing.T) {
	s, err := DefaultConfig().Validate()
	require.NoError(t, err)

	assert.Equal(t, video.BackendFFmpeg, s.Backend)
	assert.Nil(t, s.ROI)
	assert.Equal(t, region.DefaultBlankThreshold, s.Blank)
	assert.Equal(t, region.Independent, s.Lengths)
	assert.Equal(t, normalize.DefaultPolicy(), s.Normalization)
	assert.Equal(t, decompose.SVD, s.Method)
	assert.True(t, s.Cold)
	assert.Equal(t, coldsub.Signed, s.ColdPolicy)
	assert.Equal(t, []visualization.Format{visualization.PNG, visualization.Raw}, s.Formats)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "thermopct.yaml")

	cfg := DefaultConfig()
	cfg.Region.ROI = "1,2,30,40"
	cfg.Processing.Method = "pca"
	cfg.Processing.Strict = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	s, err := loaded.Validate()
	require.NoError(t, err)
	require.NotNil(t, s.ROI)
	assert.Equal(t, models.NewROI(1, 2, 30, 40), *s.ROI)
	assert.Equal(t, decompose.PCA, s.Method)
	assert.True(t, s.Normalization.Strict)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  method: ppt\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ppt", cfg.Processing.Method)
	assert.Equal(t, normalize.DefaultEpsilon, cfg.Processing.Epsilon)
	assert.Equal(t, "output", cfg.Output.Dir)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [unclosed"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PCT_METHOD", "pca")
	t.Setenv("PCT_ROI", "0,0,8,8")
	t.Setenv("PCT_STRICT", "true")
	t.Setenv("PCT_BLANK_THRESHOLD", "2.5")
	t.Setenv("PCT_OUTPUT_FORMATS", "tiff")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "pca", cfg.Processing.Method)
	assert.Equal(t, "0,0,8,8", cfg.Region.ROI)
	assert.True(t, cfg.Processing.Strict)
	assert.Equal(t, 2.5, cfg.Region.BlankThreshold)

	// Unset variables keep their defaults
	assert.Equal(t, "standardize", cfg.Processing.Normalization)

	t.Setenv("PCT_EPSILON", "not-a-number")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := map[string]func(*Config){
		"backend":       func(c *Config) { c.Input.Backend = "vlc" },
		"roi":           func(c *Config) { c.Region.ROI = "1,2,3" },
		"empty roi":     func(c *Config) { c.Region.ROI = "0,0,0,5" },
		"blank":         func(c *Config) { c.Region.BlankThreshold = -1 },
		"lengths":       func(c *Config) { c.Region.Lengths = "pad" },
		"normalization": func(c *Config) { c.Processing.Normalization = "minmax" },
		"epsilon":       func(c *Config) { c.Processing.Epsilon = -1e-3 },
		"method":        func(c *Config) { c.Processing.Method = "ica" },
		"cold policy":   func(c *Config) { c.ColdSubtraction.Policy = "abs" },
		"formats":       func(c *Config) { c.Output.Formats = "gif" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			_, err := cfg.Validate()
			assert.Error(t, err)
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "coldSubtraction:")
	assert.Contains(t, string(data), "method: svd")

	// The generated file is kept; a second call must not overwrite edits
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  method: ppt\n"), 0644))
	err = CreateDefaultConfigFile(path)
	assert.ErrorIs(t, err, os.ErrExist)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "processing:\n  method: ppt\n", string(data))
}

func TestSaveConfigReplacesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermopct.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	cfg := DefaultConfig()
	cfg.Output.Dir = "results"
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "output:\n  dir: results\n")

	// No temporary files are left beside the configuration
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "thermopct.yaml", entries[0].Name())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
