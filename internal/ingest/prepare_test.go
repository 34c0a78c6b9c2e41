package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataRoot:           t.TempDir(),
		MaxDownloadBytes:   10 << 20,
		MaxExtractedBytes:  10 << 20,
		MaxFilesPerDataset: 1000,
		Pipeline: config.PipelineConfig{
			Enabled:         true,
			FileConcurrency: 2,
			BatchSize:       10,
			FlushSeconds:    1,
			FetchTimeoutSec: 5,
		},
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("", logger.LevelError, false)
	require.NoError(t, err)
	return log
}

// buildZip assembles an archive in memory from name -> content pairs.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestHasZipSignature(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(zipPath, buildZip(t, map[string]string{"x.txt": "hi"}), 0644))

	textPath := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(textPath, []byte("definitely not a zip"), 0644))

	assert.True(t, hasZipSignature(zipPath))
	assert.False(t, hasZipSignature(textPath))
	assert.False(t, hasZipSignature(filepath.Join(dir, "missing.bin")))
}

func TestMemberPathSafe(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "plain file", path: "scan.png", want: true},
		{name: "nested file", path: "images/axial/scan.dcm", want: true},
		{name: "dot segment", path: "./scan.png", want: true},
		{name: "absolute", path: "/etc/passwd", want: false},
		{name: "traversal", path: "../../etc/passwd", want: false},
		{name: "embedded traversal", path: "images/../../escape.txt", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, memberPathSafe(tt.path))
		})
	}
}

func TestSafeExtractZipSkipsUnsafeMembers(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "data.zip")
	require.NoError(t, os.WriteFile(zipPath, buildZip(t, map[string]string{
		"ok/scan.png":   "pixels",
		"../escape.txt": "evil",
	}), 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0755))
	require.NoError(t, safeExtractZip(context.Background(), zipPath, dest, 10<<20))

	_, err := os.Stat(filepath.Join(dest, "ok", "scan.png"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(err), "traversal member must not be extracted")
}

func TestSafeExtractZipTooLarge(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "data.zip")
	require.NoError(t, os.WriteFile(zipPath, buildZip(t, map[string]string{
		"big.bin": string(bytes.Repeat([]byte("x"), 2048)),
	}), 0644))

	err := safeExtractZip(context.Background(), zipPath, t.TempDir(), 1024)
	assert.ErrorIs(t, err, domain.ErrExtractTooLarge)
}

func TestSafeNameFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "plain", url: "https://host/files/scan.nii.gz", want: "scan.nii.gz"},
		{name: "query stripped", url: "https://host/data.zip?token=abc", want: "data.zip"},
		{name: "fragment stripped", url: "https://host/data.zip#section", want: "data.zip"},
		{name: "unsafe chars dropped", url: "https://host/we ird%name.png", want: "weirdname.png"},
		{name: "empty tail", url: "https://host/files/", want: "download.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, safeNameFromURL(tt.url))
		})
	}
}

func TestPrepareExtractsArchive(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"images/a.png": "aaa",
		"images/b.png": "bbb",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	log := testLogger(t)
	preparer := NewPreparer(cfg, NewRegistry(cfg, log), log)

	res, err := preparer.Prepare(context.Background(), "ds1", srv.URL+"/archive.zip")
	require.NoError(t, err)

	assert.Equal(t, "http", res.Provider)
	assert.Equal(t, srv.URL+"/archive.zip", res.ResolvedURL)

	for _, rel := range []string{"images/a.png", "images/b.png"} {
		_, err := os.Stat(filepath.Join(res.ScanRoot, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}
}

func TestPrepareCopiesSingleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an archive"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	log := testLogger(t)
	preparer := NewPreparer(cfg, NewRegistry(cfg, log), log)

	res, err := preparer.Prepare(context.Background(), "ds2", srv.URL+"/volume.nii")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(res.ScanRoot, "volume.nii"))
	require.NoError(t, err)
	assert.Equal(t, "not an archive", string(data))
}

func TestPrepareDownloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.MaxDownloadBytes = 1024
	log := testLogger(t)
	preparer := NewPreparer(cfg, NewRegistry(cfg, log), log)

	_, err := preparer.Prepare(context.Background(), "ds3", srv.URL+"/big.zip")
	assert.ErrorIs(t, err, domain.ErrDownloadTooLarge)
}
