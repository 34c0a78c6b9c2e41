package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a directory with no config.yaml
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(2_000_000_000), cfg.MaxDownloadBytes)
	assert.Equal(t, 50_000, cfg.MaxFilesPerDataset)
	assert.True(t, cfg.Pipeline.Enabled)
	assert.Equal(t, 32, cfg.Pipeline.FileConcurrency)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.InDelta(t, 1.0, cfg.Pipeline.FlushSeconds, 1e-9)
	assert.Equal(t, "www.kaggle.com", cfg.Providers.DatasetHost)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
data_root: /var/lib/datascan
pipeline:
  file_concurrency: 8
  batch_size: 25
providers:
  dataset_host: archive.example.com
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/datascan", cfg.DataRoot)
	assert.Equal(t, 8, cfg.Pipeline.FileConcurrency)
	assert.Equal(t, 25, cfg.Pipeline.BatchSize)
	assert.Equal(t, "archive.example.com", cfg.Providers.DatasetHost)
	// Untouched keys keep their defaults
	assert.True(t, cfg.Pipeline.Enabled)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_download_bytes: -5\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "max_download_bytes")
}

func TestValidateBackfillsPipelineDefaults(t *testing.T) {
	cfg := &Config{
		MaxDownloadBytes:   1,
		MaxExtractedBytes:  1,
		MaxFilesPerDataset: 1,
	}
	require.NoError(t, cfg.validate())

	assert.Equal(t, 1, cfg.Pipeline.FileConcurrency)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.InDelta(t, 1.0, cfg.Pipeline.FlushSeconds, 1e-9)
	assert.Equal(t, 120, cfg.Pipeline.FetchTimeoutSec)
}
