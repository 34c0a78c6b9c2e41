package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
)

// DatasetHostProvider fetches archives from a Kaggle-style dataset
// host. It matches URLs of the form
// https://<dataset_host>/datasets/<owner>/<name> and downloads the
// zipped dataset through the host's authenticated download API.
type DatasetHostProvider struct {
	cfg     *config.Config
	fetcher *fetcher
	log     *logger.Logger
}

func (p *DatasetHostProvider) Name() string { return "kaggle" }

func (p *DatasetHostProvider) CanHandle(rawURL string) bool {
	host := p.cfg.Providers.DatasetHost
	if host == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(u.Host, host) && !strings.EqualFold(u.Host, strings.TrimPrefix(host, "www.")) {
		return false
	}

	_, err = parseDatasetRef(rawURL)
	return err == nil
}

func (p *DatasetHostProvider) Fetch(ctx context.Context, rawURL, outPath string) (FetchResult, error) {
	ref, err := parseDatasetRef(rawURL)
	if err != nil {
		return FetchResult{}, err
	}

	p.log.Info("Downloading dataset %s from %s", ref, p.cfg.Providers.DatasetHost)

	// The download API serves the dataset as a single zip archive.
	apiURL := fmt.Sprintf("https://%s/api/v1/datasets/download/%s", p.cfg.Providers.DatasetHost, ref)

	opts := requestOptions{
		basicUser: p.cfg.Providers.DatasetAPIUser,
		basicPass: p.cfg.Providers.DatasetAPIKey,
	}
	if err := p.fetcher.download(ctx, apiURL, outPath, opts); err != nil {
		return FetchResult{}, err
	}

	return FetchResult{Provider: p.Name(), OriginalURL: rawURL, ResolvedURL: rawURL}, nil
}

// parseDatasetRef extracts "owner/name" from /datasets/<owner>/<name>.
func parseDatasetRef(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, x := range strings.Split(u.Path, "/") {
		if x != "" {
			parts = append(parts, x)
		}
	}
	if len(parts) < 3 || parts[0] != "datasets" {
		return "", fmt.Errorf("not a dataset URL (expected /datasets/<owner>/<name>): %s", rawURL)
	}
	return parts[1] + "/" + parts[2], nil
}
