package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/tether/extract"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// maxFileSize caps decoded file content at 10 MB.
const maxFileSize = 10 << 20

// GitHubProvider fetches file content through the GitHub contents API.
type GitHubProvider struct {
	client  *http.Client
	baseURL string
	token   string
}

// GitHubOption configures a GitHubProvider.
type GitHubOption func(*GitHubProvider)

// WithBaseURL overrides the API endpoint (GitHub Enterprise, tests).
func WithBaseURL(u string) GitHubOption {
	return func(p *GitHubProvider) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithToken sets the bearer token for authenticated requests.
func WithToken(token string) GitHubOption {
	return func(p *GitHubProvider) { p.token = token }
}

// NewGitHubProvider creates a provider with the given request timeout.
func NewGitHubProvider(timeout time.Duration, opts ...GitHubOption) *GitHubProvider {
	p := &GitHubProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// contentsResponse is the subset of the contents API payload we read.
type contentsResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

// GetFileContent fetches path from owner/repo at ref. A 404 becomes
// *extract.FileNotFoundError; other non-200 statuses are generic errors.
func (p *GitHubProvider) GetFileContent(ctx context.Context, owner, repo, path, ref string) (*FileContent, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		p.baseURL, url.PathEscape(owner), url.PathEscape(repo), escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build contents request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s/%s: %w", owner, repo, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &extract.FileNotFoundError{Owner: owner, Repo: repo, Path: path, Ref: ref}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("contents API returned %d for %s/%s/%s", resp.StatusCode, owner, repo, path)
	}

	var body contentsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFileSize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode contents response: %w", err)
	}
	if body.Type != "" && body.Type != "file" {
		return nil, fmt.Errorf("%s/%s/%s is a %s, not a file", owner, repo, path, body.Type)
	}

	text, err := decodeContent(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s/%s: %w", owner, repo, path, err)
	}

	return &FileContent{Content: text, SHA: body.SHA}, nil
}

func decodeContent(body contentsResponse) (string, error) {
	switch body.Encoding {
	case "base64":
		// The API wraps base64 at 60 columns.
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("base64 decode: %w", err)
		}
		return string(raw), nil
	case "", "none":
		return body.Content, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", body.Encoding)
	}
}

// escapePath escapes each path segment while keeping separators.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
