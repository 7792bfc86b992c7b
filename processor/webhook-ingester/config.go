package webhookingester

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the webhook-ingester component.
type Config struct {
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`

	// Secret is the shared HMAC secret for push payload signatures.
	// When empty, signature verification is skipped; intended for local
	// development only.
	Secret string `json:"secret" schema:"type:string,description:HMAC shared secret for webhook signatures,category:basic,default:"`

	// IgnoreGlobs lists doublestar patterns for file paths that never
	// produce change events (vendored or generated code).
	IgnoreGlobs []string `json:"ignore_globs" schema:"type:array,description:File path globs excluded from tracking,category:advanced"`

	// MaxBodyBytes caps the accepted webhook body size.
	MaxBodyBytes int64 `json:"max_body_bytes" schema:"type:int,description:Maximum webhook body size in bytes,category:advanced,default:1048576"`
}

// DefaultConfig returns default configuration for the webhook-ingester.
func DefaultConfig() Config {
	return Config{
		IgnoreGlobs:  []string{"vendor/**", "node_modules/**"},
		MaxBodyBytes: 1 << 20,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	for _, glob := range c.IgnoreGlobs {
		if !doublestar.ValidatePattern(glob) {
			return fmt.Errorf("invalid ignore glob %q", glob)
		}
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be non-negative")
	}
	return nil
}

// GetMaxBodyBytes returns the body size cap with default.
func (c *Config) GetMaxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return c.MaxBodyBytes
}
