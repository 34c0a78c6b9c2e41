package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/datallboy/datascan/internal/infra/config"
)

// GitHubRepoProvider resolves github.com repository URLs to their
// zipball endpoint and streams the archive.
type GitHubRepoProvider struct {
	cfg     *config.Config
	fetcher *fetcher
}

func (p *GitHubRepoProvider) Name() string { return "github" }

func (p *GitHubRepoProvider) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return false
	}
	owner, repo, _, err := parseGitHubRepoURL(rawURL)
	return err == nil && owner != "" && repo != ""
}

func (p *GitHubRepoProvider) Fetch(ctx context.Context, rawURL, outPath string) (FetchResult, error) {
	owner, repo, ref, err := parseGitHubRepoURL(rawURL)
	if err != nil {
		return FetchResult{}, err
	}

	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/zipball", owner, repo)
	if ref != "" {
		apiURL += "/" + ref
	}

	opts := requestOptions{headers: map[string]string{
		"Accept": "application/vnd.github+json",
	}}
	if p.cfg.Providers.GitHubToken != "" {
		opts.headers["Authorization"] = "Bearer " + p.cfg.Providers.GitHubToken
	}

	if err := p.fetcher.download(ctx, apiURL, outPath, opts); err != nil {
		return FetchResult{}, err
	}

	return FetchResult{Provider: p.Name(), OriginalURL: rawURL, ResolvedURL: apiURL}, nil
}

// parseGitHubRepoURL extracts owner, repo and optional /tree/<ref>
// from a GitHub repository URL.
func parseGitHubRepoURL(rawURL string) (owner, repo, ref string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", err
	}

	var parts []string
	for _, x := range strings.Split(u.Path, "/") {
		if x != "" {
			parts = append(parts, x)
		}
	}
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("not a GitHub repo URL: %s", rawURL)
	}

	owner = parts[0]
	repo = strings.TrimSuffix(parts[1], ".git")
	if len(parts) >= 4 && parts[2] == "tree" {
		ref = parts[3]
	}
	return owner, repo, ref, nil
}
