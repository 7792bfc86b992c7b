package webhookingester

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the webhook-ingester component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "webhook-ingester",
		Factory:     NewComponent,
		Schema:      webhookIngesterSchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "tether",
		Description: "Signed push-payload ingestion creating pending change events",
		Version:     "0.1.0",
	})
}
