package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
	"github.com/dustin/go-humanize"
)

// Standard ZIP local file header signature
var zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}

// PrepareResult describes a materialised dataset workspace.
type PrepareResult struct {
	Provider    string
	OriginalURL string
	ResolvedURL string
	ScanRoot    string
}

// Preparer materialises a dataset on local storage:
// download to <data_root>/<dataset_id>/download.bin, then either safe
// zip extraction or a single-file copy under extracted/.
type Preparer struct {
	cfg      *config.Config
	registry *Registry
	log      *logger.Logger
}

func NewPreparer(cfg *config.Config, registry *Registry, log *logger.Logger) *Preparer {
	return &Preparer{cfg: cfg, registry: registry, log: log}
}

func (p *Preparer) Prepare(ctx context.Context, datasetID, url string) (PrepareResult, error) {
	root := filepath.Join(p.cfg.DataRoot, datasetID)
	downloadPath := filepath.Join(root, "download.bin")
	extractedRoot := filepath.Join(root, "extracted")

	if err := os.MkdirAll(extractedRoot, 0755); err != nil {
		return PrepareResult{}, fmt.Errorf("failed to create workspace: %w", err)
	}

	fetch, err := p.registry.Fetch(ctx, url, downloadPath)
	if err != nil {
		return PrepareResult{}, err
	}

	if info, err := os.Stat(downloadPath); err == nil {
		p.log.Info("dataset=%s fetched %s via %s", datasetID, humanize.Bytes(uint64(info.Size())), fetch.Provider)
	}

	isZip := hasZipSignature(downloadPath) || strings.HasSuffix(strings.ToLower(fetch.ResolvedURL), ".zip")
	if isZip {
		if err := safeExtractZip(ctx, downloadPath, extractedRoot, p.cfg.MaxExtractedBytes); err != nil {
			return PrepareResult{}, err
		}
	} else {
		dest := filepath.Join(extractedRoot, safeNameFromURL(fetch.ResolvedURL))
		if err := copyFile(downloadPath, dest); err != nil {
			return PrepareResult{}, err
		}
	}

	return PrepareResult{
		Provider:    fetch.Provider,
		OriginalURL: fetch.OriginalURL,
		ResolvedURL: fetch.ResolvedURL,
		ScanRoot:    extractedRoot,
	}, nil
}

// hasZipSignature checks the first four bytes for the ZIP magic.
func hasZipSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, 4)
	if n, err := io.ReadFull(f, header); err != nil || n < 4 {
		return false
	}
	return bytes.Equal(header, zipSignature)
}

// safeExtractZip extracts an archive member by member. Members whose
// path is absolute or escapes the destination via ".." are skipped
// (zip-slip defence); accumulated uncompressed sizes over maxBytes
// fail the extraction.
func safeExtractZip(ctx context.Context, zipPath, dest string, maxBytes int64) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	var extracted int64
	for _, member := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !memberPathSafe(member.Name) {
			continue
		}

		extracted += int64(member.UncompressedSize64)
		if extracted > maxBytes {
			return fmt.Errorf("%w: archive expands past %d bytes", domain.ErrExtractTooLarge, maxBytes)
		}

		if err := extractMember(member, dest); err != nil {
			return err
		}
	}

	return nil
}

func memberPathSafe(name string) bool {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func extractMember(member *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.FromSlash(member.Name))

	if member.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", member.Name, err)
	}
	return nil
}

// safeNameFromURL derives a filesystem-safe name from the final URL
// path segment, dropping query/fragment and any character outside
// [A-Za-z0-9_.+-].
func safeNameFromURL(url string) string {
	name := url
	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '?'); i != -1 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '#'); i != -1 {
		name = name[:i]
	}

	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '-' || c == '_' || c == '.' || c == '+':
			b.WriteRune(c)
		}
	}

	if b.Len() == 0 {
		return "download.bin"
	}
	return b.String()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
