package referenceapi

import (
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the reference-api component.
type Config struct {
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`

	// GitHubToken authenticates initial snapshot fetches during ingest.
	GitHubToken string `json:"github_token" schema:"type:string,description:GitHub API token,category:basic,default:"`

	// GitHubBaseURL overrides the GitHub API base URL (testing, GHE).
	GitHubBaseURL string `json:"github_base_url" schema:"type:string,description:GitHub API base URL override,category:advanced,default:"`

	// FetchTimeout bounds one content-API request.
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:Content fetch timeout,category:advanced,default:30s"`

	// MaxDocumentBytes caps the accepted ingest document size.
	MaxDocumentBytes int64 `json:"max_document_bytes" schema:"type:int,description:Maximum ingest document size in bytes,category:advanced,default:1048576"`
}

// DefaultConfig returns default configuration for the reference-api.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:     "30s",
		MaxDocumentBytes: 1 << 20,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.FetchTimeout != "" {
		if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
			return fmt.Errorf("invalid fetch_timeout format: %w", err)
		}
	}
	if c.MaxDocumentBytes < 0 {
		return fmt.Errorf("max_document_bytes must be non-negative")
	}
	return nil
}

// GetFetchTimeout returns the content fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	if c.FetchTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetMaxDocumentBytes returns the document size cap with default.
func (c *Config) GetMaxDocumentBytes() int64 {
	if c.MaxDocumentBytes <= 0 {
		return 1 << 20
	}
	return c.MaxDocumentBytes
}
