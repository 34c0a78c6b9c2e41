package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
)

const fetchChunkSize = 1024 * 1024 // 1 MiB

// fetcher owns the HTTP client shared by all providers and enforces
// the per-download byte cap while streaming to disk.
type fetcher struct {
	client   *http.Client
	maxBytes int64
	cfg      *config.Config
}

func newFetcher(cfg *config.Config) *fetcher {
	return &fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.Pipeline.FetchTimeoutSec) * time.Second,
		},
		maxBytes: cfg.MaxDownloadBytes,
		cfg:      cfg,
	}
}

type requestOptions struct {
	headers   map[string]string
	basicUser string
	basicPass string
}

// download streams url to outPath in ~1 MiB chunks, failing with
// domain.ErrDownloadTooLarge once the cumulative count passes the cap.
func (f *fetcher) download(ctx context.Context, url, outPath string, opts requestOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	resp, err := f.get(ctx, url, opts, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s returned status %d", url, resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var total int64
	buf := make([]byte, fetchChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > f.maxBytes {
				return fmt.Errorf("%w: %d bytes exceeds cap of %d", domain.ErrDownloadTooLarge, total, f.maxBytes)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	return out.Sync()
}

// preview fetches up to maxBytes of the response body, for HTML
// landing-page detection.
func (f *fetcher) preview(ctx context.Context, url string, maxBytes int64, opts requestOptions) ([]byte, error) {
	resp, err := f.get(ctx, url, opts, map[string]string{
		"Accept": "text/html,application/xhtml+xml",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview failed: status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

func (f *fetcher) get(ctx context.Context, url string, opts requestOptions, extra map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	if opts.basicUser != "" || opts.basicPass != "" {
		req.SetBasicAuth(opts.basicUser, opts.basicPass)
	}

	return f.client.Do(req)
}

// configuredHeaders decodes the providers.http_headers_json setting.
// Invalid JSON is treated as no headers.
func (f *fetcher) configuredHeaders() map[string]string {
	raw := f.cfg.Providers.HTTPHeadersJSON
	if raw == "" {
		return nil
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}
	return decoded
}

func (f *fetcher) authOptions() requestOptions {
	return requestOptions{
		headers:   f.configuredHeaders(),
		basicUser: f.cfg.Providers.HTTPBasicUser,
		basicPass: f.cfg.Providers.HTTPBasicPass,
	}
}
