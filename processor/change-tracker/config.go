package changetracker

import (
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/tether/storage"
)

// maxBatchSize caps how many events one fetch may claim.
const maxBatchSize = 50

// Config holds configuration for the change-tracker processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream work stream carrying pending event ids.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream work stream name,category:basic,default:TETHER_CHANGES"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:change-tracker"`

	// BatchSize is the number of events claimed per fetch, capped at 50.
	BatchSize int `json:"batch_size" schema:"type:int,description:Events claimed per fetch,category:advanced,default:50"`

	// FetchMaxWait is how long a fetch waits for messages before retrying.
	FetchMaxWait string `json:"fetch_max_wait" schema:"type:string,description:Maximum wait per fetch,category:advanced,default:5s"`

	// GitHubToken authenticates content fetches. Empty means anonymous.
	GitHubToken string `json:"github_token" schema:"type:string,description:GitHub API token,category:basic,default:"`

	// GitHubBaseURL overrides the GitHub API base URL (testing, GHE).
	GitHubBaseURL string `json:"github_base_url" schema:"type:string,description:GitHub API base URL override,category:advanced,default:"`

	// FetchTimeout bounds one content-API request.
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:Content fetch timeout,category:advanced,default:30s"`

	// NotifyURL is the webhook endpoint for change and conflict
	// notifications. Empty disables notification delivery.
	NotifyURL string `json:"notify_url" schema:"type:string,description:Notification webhook URL,category:basic,default:"`

	// NotifyTimeout bounds one notification delivery.
	NotifyTimeout string `json:"notify_timeout" schema:"type:string,description:Notification delivery timeout,category:advanced,default:10s"`
}

// DefaultConfig returns default configuration for the change-tracker.
func DefaultConfig() Config {
	return Config{
		StreamName:    storage.ChangeStream,
		ConsumerName:  "change-tracker",
		BatchSize:     maxBatchSize,
		FetchMaxWait:  "5s",
		FetchTimeout:  "30s",
		NotifyTimeout: "10s",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.BatchSize < 0 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d", maxBatchSize)
	}
	for _, d := range []string{c.FetchMaxWait, c.FetchTimeout, c.NotifyTimeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	return nil
}

func parseDurationOrDefault(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// GetBatchSize returns the fetch batch size with default and cap applied.
func (c *Config) GetBatchSize() int {
	if c.BatchSize <= 0 || c.BatchSize > maxBatchSize {
		return maxBatchSize
	}
	return c.BatchSize
}

// GetFetchMaxWait returns the fetch wait as a duration.
func (c *Config) GetFetchMaxWait() time.Duration {
	return parseDurationOrDefault(c.FetchMaxWait, 5*time.Second)
}

// GetFetchTimeout returns the content fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDurationOrDefault(c.FetchTimeout, 30*time.Second)
}

// GetNotifyTimeout returns the notification timeout as a duration.
func (c *Config) GetNotifyTimeout() time.Duration {
	return parseDurationOrDefault(c.NotifyTimeout, 10*time.Second)
}
