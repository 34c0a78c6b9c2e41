package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGitHubRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantRef   string
		wantErr   bool
	}{
		{
			name:      "plain repo",
			url:       "https://github.com/owner/repo",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "dot git suffix",
			url:       "https://github.com/owner/repo.git",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "tree ref",
			url:       "https://github.com/owner/repo/tree/v1.2.0",
			wantOwner: "owner",
			wantRepo:  "repo",
			wantRef:   "v1.2.0",
		},
		{
			name:    "owner only",
			url:     "https://github.com/owner",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, ref, err := parseGitHubRepoURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantRef, ref)
		})
	}
}

func TestGitHubProviderCanHandle(t *testing.T) {
	p := &GitHubRepoProvider{cfg: testConfig(t), fetcher: newFetcher(testConfig(t))}

	assert.True(t, p.CanHandle("https://github.com/owner/repo"))
	assert.True(t, p.CanHandle("https://github.com/owner/repo/tree/main"))
	assert.False(t, p.CanHandle("https://gitlab.com/owner/repo"))
	assert.False(t, p.CanHandle("https://github.com/owner"))
	assert.False(t, p.CanHandle("ftp://github.com/owner/repo"))
}
