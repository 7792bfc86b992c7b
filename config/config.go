// Package config provides configuration loading and management for Tether.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the complete Tether configuration
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	HTTP    HTTPConfig    `yaml:"http"`
	GitHub  GitHubConfig  `yaml:"github"`
	Webhook WebhookConfig `yaml:"webhook"`
	Tracker TrackerConfig `yaml:"tracker"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
	// StoreDir is the JetStream storage directory for the embedded server
	StoreDir string `yaml:"store_dir"`
}

// HTTPConfig configures the admin/webhook HTTP listener
type HTTPConfig struct {
	// Addr is the listen address for the HTTP server
	Addr string `yaml:"addr"`
}

// GitHubConfig configures the content provider
type GitHubConfig struct {
	// Token authenticates contents-API requests (supports ${VAR} expansion)
	Token string `yaml:"token"`
	// BaseURL overrides the API base URL (testing, GitHub Enterprise)
	BaseURL string `yaml:"base_url"`
	// FetchTimeout bounds one content fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// WebhookConfig configures the push ingestion boundary
type WebhookConfig struct {
	// Secret is the shared HMAC secret (supports ${VAR} expansion);
	// empty disables signature verification
	Secret string `yaml:"secret"`
	// IgnoreGlobs lists file-path patterns that never produce events
	IgnoreGlobs []string `yaml:"ignore_globs"`
	// MaxBodyBytes caps the accepted webhook body size
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// TrackerConfig configures the change-tracker consumer
type TrackerConfig struct {
	// BatchSize is the number of events claimed per fetch (max 50)
	BatchSize int `yaml:"batch_size"`
	// FetchMaxWait is how long one fetch waits for messages
	FetchMaxWait time.Duration `yaml:"fetch_max_wait"`
}

// NotifyConfig configures notification delivery
type NotifyConfig struct {
	// URL is the webhook endpoint for change/conflict notifications
	// (empty disables delivery)
	URL string `yaml:"url"`
	// Timeout bounds one delivery attempt
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		GitHub: GitHubConfig{
			FetchTimeout: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			IgnoreGlobs:  []string{"vendor/**", "node_modules/**"},
			MaxBodyBytes: 1 << 20,
		},
		Tracker: TrackerConfig{
			BatchSize:    50,
			FetchMaxWait: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Tracker.BatchSize < 1 || c.Tracker.BatchSize > 50 {
		return fmt.Errorf("tracker.batch_size must be between 1 and 50")
	}
	if c.GitHub.FetchTimeout <= 0 {
		return fmt.Errorf("github.fetch_timeout must be positive")
	}
	for _, glob := range c.Webhook.IgnoreGlobs {
		if !doublestar.ValidatePattern(glob) {
			return fmt.Errorf("invalid webhook.ignore_globs pattern %q", glob)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. ${VAR} references in
// the file are expanded from the environment before parsing, so secrets
// stay out of the file itself.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.NATS.StoreDir != "" {
		c.NATS.StoreDir = other.NATS.StoreDir
	}

	// HTTP
	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}

	// GitHub
	if other.GitHub.Token != "" {
		c.GitHub.Token = other.GitHub.Token
	}
	if other.GitHub.BaseURL != "" {
		c.GitHub.BaseURL = other.GitHub.BaseURL
	}
	if other.GitHub.FetchTimeout != 0 {
		c.GitHub.FetchTimeout = other.GitHub.FetchTimeout
	}

	// Webhook
	if other.Webhook.Secret != "" {
		c.Webhook.Secret = other.Webhook.Secret
	}
	if len(other.Webhook.IgnoreGlobs) > 0 {
		c.Webhook.IgnoreGlobs = other.Webhook.IgnoreGlobs
	}
	if other.Webhook.MaxBodyBytes != 0 {
		c.Webhook.MaxBodyBytes = other.Webhook.MaxBodyBytes
	}

	// Tracker
	if other.Tracker.BatchSize != 0 {
		c.Tracker.BatchSize = other.Tracker.BatchSize
	}
	if other.Tracker.FetchMaxWait != 0 {
		c.Tracker.FetchMaxWait = other.Tracker.FetchMaxWait
	}

	// Notify
	if other.Notify.URL != "" {
		c.Notify.URL = other.Notify.URL
	}
	if other.Notify.Timeout != 0 {
		c.Notify.Timeout = other.Notify.Timeout
	}
}
