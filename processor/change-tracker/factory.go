package changetracker

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the change-tracker component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "change-tracker",
		Factory:     NewComponent,
		Schema:      changeTrackerSchema,
		Type:        "processor",
		Protocol:    "jetstream",
		Domain:      "tether",
		Description: "Consumes change events and re-validates code references",
		Version:     "0.1.0",
	})
}
