package ingest

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/datallboy/datascan/internal/infra/config"
	"golang.org/x/net/html"
)

const previewBytes = 512 * 1024

var dataSuffixes = []string{".zip", ".nii", ".nii.gz", ".dcm", ".png", ".jpeg", ".jpg"}

// HTTPProvider is the catch-all for http(s) URLs. Landing pages are
// resolved to their best direct-download link before fetching.
type HTTPProvider struct {
	fetcher *fetcher
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) CanHandle(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func (p *HTTPProvider) Fetch(ctx context.Context, rawURL, outPath string) (FetchResult, error) {
	resolved := resolveDatasetURL(ctx, p.fetcher, rawURL, requestOptions{})
	if err := p.fetcher.download(ctx, resolved, outPath, requestOptions{}); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Provider: p.Name(), OriginalURL: rawURL, ResolvedURL: resolved}, nil
}

// AuthenticatedHTTPProvider handles http(s) URLs when credentials or
// extra headers are configured, taking priority over the plain one.
type AuthenticatedHTTPProvider struct {
	cfg     *config.Config
	fetcher *fetcher
}

func (p *AuthenticatedHTTPProvider) Name() string { return "auth_http" }

func (p *AuthenticatedHTTPProvider) CanHandle(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return false
	}
	pc := p.cfg.Providers
	return pc.HTTPHeadersJSON != "" || (pc.HTTPBasicUser != "" && pc.HTTPBasicPass != "")
}

func (p *AuthenticatedHTTPProvider) Fetch(ctx context.Context, rawURL, outPath string) (FetchResult, error) {
	opts := p.fetcher.authOptions()
	resolved := resolveDatasetURL(ctx, p.fetcher, rawURL, opts)
	if err := p.fetcher.download(ctx, resolved, outPath, opts); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Provider: p.Name(), OriginalURL: rawURL, ResolvedURL: resolved}, nil
}

// resolveDatasetURL turns a landing page into a direct download link.
// URLs already ending in a known data suffix pass through; otherwise a
// bounded preview is fetched, and if it looks like HTML its same-host
// anchors are ranked by suffix priority. Resolution is best-effort:
// any failure falls back to the original URL.
func resolveDatasetURL(ctx context.Context, f *fetcher, rawURL string, opts requestOptions) string {
	lowered := strings.ToLower(rawURL)
	for _, sfx := range dataSuffixes {
		if strings.HasSuffix(lowered, sfx) {
			return rawURL
		}
	}

	blob, err := f.preview(ctx, rawURL, previewBytes, opts)
	if err != nil || !looksLikeHTML(blob) {
		return rawURL
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	var candidates []string
	for _, href := range extractHrefs(blob) {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if abs.Host == "" || abs.Host != base.Host {
			continue
		}
		candidates = append(candidates, abs.String())
	}

	if best := pickBestDownloadCandidate(candidates); best != "" {
		return best
	}
	return rawURL
}

func looksLikeHTML(blob []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(blob))
	if len(head) > 200 {
		head = head[:200]
	}
	if bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype html")) {
		return true
	}
	probe := blob
	if len(probe) > 4096 {
		probe = probe[:4096]
	}
	return bytes.Contains(bytes.ToLower(probe), []byte("<a "))
}

// extractHrefs collects anchor href attributes from an HTML fragment.
func extractHrefs(blob []byte) []string {
	var hrefs []string

	// The tokenizer tolerates the truncated documents a bounded
	// preview produces.
	tz := html.NewTokenizer(bytes.NewReader(blob))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return hrefs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tz.TagName()
		if !bytes.Equal(name, []byte("a")) || !hasAttr {
			continue
		}
		for {
			key, val, more := tz.TagAttr()
			if bytes.Equal(key, []byte("href")) && len(val) > 0 {
				hrefs = append(hrefs, string(val))
			}
			if !more {
				break
			}
		}
	}
}

// pickBestDownloadCandidate scores candidates by suffix priority
// zip > nii.gz > nii > dcm > image, +10 when the URL mentions
// "download", shortest URL as tie-break. Returns "" when nothing
// scores positive.
func pickBestDownloadCandidate(urls []string) string {
	score := func(u string) int {
		lu := strings.ToLower(u)
		var s int
		switch {
		case strings.HasSuffix(lu, ".zip"):
			s = 100
		case strings.HasSuffix(lu, ".nii.gz"):
			s = 90
		case strings.HasSuffix(lu, ".nii"):
			s = 85
		case strings.HasSuffix(lu, ".dcm"):
			s = 80
		case strings.HasSuffix(lu, ".png"), strings.HasSuffix(lu, ".jpeg"), strings.HasSuffix(lu, ".jpg"):
			s = 70
		}
		if strings.Contains(lu, "download") {
			s += 10
		}
		return s
	}

	ranked := make([]string, len(urls))
	copy(ranked, urls)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return len(ranked[i]) < len(ranked[j])
	})

	if len(ranked) == 0 || score(ranked[0]) <= 0 {
		return ""
	}
	return ranked[0]
}
