package referenceapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the reference-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "reference-api",
		Factory:     NewComponent,
		Schema:      referenceAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "tether",
		Description: "HTTP endpoints for reference authoring and administration",
		Version:     "0.1.0",
	})
}
