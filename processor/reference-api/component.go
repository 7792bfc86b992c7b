// Package referenceapi is the authoring and admin surface: documents are
// ingested here (links scanned, initial snapshots taken, references
// created), references listed and resolved, and failed events re-queued.
package referenceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/tether/content"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
)

// referenceAPISchema holds the configuration schema generated from Config.
var referenceAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Store is the persistence surface the API needs.
type Store interface {
	CreateReference(ctx context.Context, ref reference.CodeReference) error
	GetReference(ctx context.Context, id string) (reference.CodeReference, uint64, error)
	PutReference(ctx context.Context, ref reference.CodeReference) error
	ListReferences(ctx context.Context, owner, repo string) ([]reference.CodeReference, error)
	GetEvent(ctx context.Context, id string) (reference.CodeChangeEvent, error)
	PutEvent(ctx context.Context, ev reference.CodeChangeEvent) error
}

// Publisher re-queues event ids onto the work stream.
type Publisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Component implements the reference-api component.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Wired in Start; guarded for handler access before startup.
	wiredMu   sync.RWMutex
	store     Store
	provider  content.Provider
	publisher Publisher

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent constructs a reference-api Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "reference-api",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}
	return nil
}

// Start wires storage and the content provider and begins serving.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var providerOpts []content.GitHubOption
	if c.config.GitHubToken != "" {
		providerOpts = append(providerOpts, content.WithToken(c.config.GitHubToken))
	}
	if c.config.GitHubBaseURL != "" {
		providerOpts = append(providerOpts, content.WithBaseURL(c.config.GitHubBaseURL))
	}

	c.wiredMu.Lock()
	c.store = store
	c.provider = content.NewGitHubProvider(c.config.GetFetchTimeout(), providerOpts...)
	c.publisher = c.natsClient
	c.wiredMu.Unlock()

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("Reference API started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)
	c.logger.Info("Reference API stopped")
	return nil
}

// wired returns the current store/provider/publisher triple.
func (c *Component) wired() (Store, content.Provider, Publisher) {
	c.wiredMu.RLock()
	defer c.wiredMu.RUnlock()
	return c.store, c.provider, c.publisher
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "reference-api",
		Type:        "processor",
		Description: "HTTP endpoints for reference authoring and administration",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts declares the work-stream output used by event re-queues.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "changes.out",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "Re-queued change-event ids",
			Config: component.JetStreamPort{
				StreamName: storage.ChangeStream,
				Subjects:   []string{storage.ChangeSubjectPrefix + ">"},
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return referenceAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
