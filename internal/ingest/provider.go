package ingest

import (
	"context"

	"github.com/datallboy/datascan/internal/domain"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
)

// FetchResult records which provider served a URL and how the URL was
// resolved before downloading.
type FetchResult struct {
	Provider    string
	OriginalURL string
	ResolvedURL string
}

// Provider is one fetch strategy. CanHandle must be cheap and
// side-effect free; Fetch streams the payload to outPath under the
// configured download cap.
type Provider interface {
	Name() string
	CanHandle(url string) bool
	Fetch(ctx context.Context, url, outPath string) (FetchResult, error)
}

// Registry is an ordered provider list; the first provider whose
// CanHandle returns true is selected.
type Registry struct {
	providers []Provider
}

// NewRegistry wires the default provider order: dataset host, GitHub,
// authenticated HTTP, plain HTTP.
func NewRegistry(cfg *config.Config, log *logger.Logger) *Registry {
	fetcher := newFetcher(cfg)
	return &Registry{
		providers: []Provider{
			&DatasetHostProvider{cfg: cfg, fetcher: fetcher, log: log},
			&GitHubRepoProvider{cfg: cfg, fetcher: fetcher},
			&AuthenticatedHTTPProvider{cfg: cfg, fetcher: fetcher},
			&HTTPProvider{fetcher: fetcher},
		},
	}
}

// Fetch selects a provider for the URL and runs it. First match wins.
func (r *Registry) Fetch(ctx context.Context, url, outPath string) (FetchResult, error) {
	for _, p := range r.providers {
		if p.CanHandle(url) {
			return p.Fetch(ctx, url, outPath)
		}
	}
	return FetchResult{}, domain.ErrNoProvider
}
