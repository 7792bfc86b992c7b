// Package webhookingester is the signed ingestion boundary: it accepts
// repository push notifications over HTTP, verifies their HMAC signature,
// intersects changed files against active references, and creates pending
// change events on the work stream.
package webhookingester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/tether/storage"
)

// webhookIngesterSchema holds the configuration schema generated from Config.
var webhookIngesterSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

var (
	metricEventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tether_webhook_events_created_total",
		Help: "Change events created from push payloads.",
	})
	metricSignatureRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tether_webhook_signature_rejected_total",
		Help: "Webhook deliveries rejected for a missing or invalid signature.",
	})
)

// Component implements the webhook-ingester processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	handlerMu sync.RWMutex
	handler   *Handler
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent constructs a webhook-ingester Component from raw JSON config and deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "webhook-ingester",
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

// Start connects the handler to storage and begins accepting webhooks.
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

	c.handlerMu.Lock()
	c.handler = NewHandler(store, c.natsClient, c.config.IgnoreGlobs, c.logger)
	c.handlerMu.Unlock()

	_, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)
	c.logger.Info("Webhook ingester started",
		"signature_verification", c.config.Secret != "",
		"ignore_globs", len(c.config.IgnoreGlobs))
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
	c.logger.Info("Webhook ingester stopped")
	return nil
}

// RegisterHTTPHandlers registers the webhook endpoint under the given prefix.
// The prefix should be the path segment without a trailing slash
// (e.g. "api/webhook"). Handlers are registered as:
//
//	POST <prefix>/github
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"github", c.handleWebhook)
}

// handleWebhook verifies and ingests one push delivery.
func (c *Component) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler == nil {
		http.Error(w, "Not ready", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, c.config.GetMaxBodyBytes()))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if c.config.Secret != "" {
		if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), c.config.Secret) {
			metricSignatureRejected.Inc()
			c.logger.Warn("Webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload PushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	events, err := handler.ProcessPush(r.Context(), payload)
	if err != nil {
		c.logger.Error("Push ingestion failed",
			"repository", payload.Repository.FullName,
			"error", err)
		http.Error(w, "Ingestion failed", http.StatusInternalServerError)
		return
	}

	metricEventsCreated.Add(float64(len(events)))

	resp := IngestResponse{EventsCreated: len(events)}
	for _, ev := range events {
		resp.EventIDs = append(resp.EventIDs, ev.ID)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing left to do.
		_ = err
	}
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "webhook-ingester",
		Type:        "processor",
		Description: "Signed push-payload ingestion creating pending change events",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; input arrives over HTTP.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts declares the work-stream output.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "changes.out",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "Pending change-event ids",
			Config: component.JetStreamPort{
				StreamName: storage.ChangeStream,
				Subjects:   []string{storage.ChangeSubjectPrefix + ">"},
			},
		},
	}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return webhookIngesterSchema
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
