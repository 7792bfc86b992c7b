package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c360studio/tether/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubProvider_GetFileContent(t *testing.T) {
	const fileText = "package main\n\nfunc main() {}\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/billing/contents/internal/charge.go", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(fileText)),
			"sha":      "blob-sha-1",
		})
	}))
	defer server.Close()

	p := NewGitHubProvider(0, WithBaseURL(server.URL), WithToken("secret-token"))
	fc, err := p.GetFileContent(context.Background(), "acme", "billing", "internal/charge.go", "abc123")
	require.NoError(t, err)
	assert.Equal(t, fileText, fc.Content)
	assert.Equal(t, "blob-sha-1", fc.SHA)
}

func TestGitHubProvider_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	p := NewGitHubProvider(0, WithBaseURL(server.URL))
	_, err := p.GetFileContent(context.Background(), "acme", "billing", "gone.go", "main")

	var nf *extract.FileNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "gone.go", nf.Path)
}

func TestGitHubProvider_Directory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "dir", "sha": "x"})
	}))
	defer server.Close()

	p := NewGitHubProvider(0, WithBaseURL(server.URL))
	_, err := p.GetFileContent(context.Background(), "acme", "billing", "internal", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a file")
}

func TestGitHubProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewGitHubProvider(0, WithBaseURL(server.URL))
	_, err := p.GetFileContent(context.Background(), "acme", "billing", "a.go", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
