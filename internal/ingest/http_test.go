package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickBestDownloadCandidate(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want string
	}{
		{
			name: "zip beats everything",
			urls: []string{
				"https://h/files/scan.nii.gz",
				"https://h/files/data.zip",
				"https://h/files/img.png",
			},
			want: "https://h/files/data.zip",
		},
		{
			name: "download keyword boosts",
			urls: []string{
				"https://h/assets/a.png",
				"https://h/download/b.png",
			},
			want: "https://h/download/b.png",
		},
		{
			name: "shortest wins ties",
			urls: []string{
				"https://h/files/longer-name.zip",
				"https://h/files/short.zip",
			},
			want: "https://h/files/short.zip",
		},
		{
			name: "nii.gz over nii",
			urls: []string{
				"https://h/a.nii",
				"https://h/a.nii.gz",
			},
			want: "https://h/a.nii.gz",
		},
		{
			name: "nothing scores",
			urls: []string{"https://h/about", "https://h/contact.html"},
			want: "",
		},
		{
			name: "empty input",
			urls: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickBestDownloadCandidate(tt.urls))
		})
	}
}

func TestExtractHrefs(t *testing.T) {
	blob := []byte(`<html><body>
		<a href="/files/a.zip">archive</a>
		<a class="nav" href="https://other.host/b.zip">external</a>
		<a>no href</a>
		<img src="/x.png">
	</body></html>`)

	hrefs := extractHrefs(blob)
	assert.Equal(t, []string{"/files/a.zip", "https://other.host/b.zip"}, hrefs)
}

func TestExtractHrefsTruncatedHTML(t *testing.T) {
	// A bounded preview can cut a document mid-tag.
	blob := []byte(`<html><a href="/data.zip">ok</a><a href="/part`)
	hrefs := extractHrefs(blob)
	assert.Contains(t, hrefs, "/data.zip")
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML([]byte("<!DOCTYPE html><html></html>")))
	assert.True(t, looksLikeHTML([]byte(`something <a href="x">link</a>`)))
	assert.False(t, looksLikeHTML([]byte{0x50, 0x4B, 0x03, 0x04, 0x00}))
}

func TestResolveDatasetURLPicksSameHostLink(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/dataset", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="https://elsewhere.example/other.zip">mirror</a>
			<a href="/files/data.zip">download</a>
		</body></html>`)
	})

	f := newFetcher(testConfig(t))
	resolved := resolveDatasetURL(context.Background(), f, srv.URL+"/dataset", requestOptions{})
	assert.Equal(t, srv.URL+"/files/data.zip", resolved)
}

func TestResolveDatasetURLPassesThroughDataSuffix(t *testing.T) {
	f := newFetcher(testConfig(t))
	// No request must be made for a direct data URL.
	url := "https://unreachable.invalid/scan.nii.gz"
	assert.Equal(t, url, resolveDatasetURL(context.Background(), f, url, requestOptions{}))
}

func TestResolveDatasetURLFallsBackOnNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text, no anchors here"))
	}))
	defer srv.Close()

	f := newFetcher(testConfig(t))
	url := srv.URL + "/landing"
	assert.Equal(t, url, resolveDatasetURL(context.Background(), f, url, requestOptions{}))
}
