// Package changetracker consumes pending change events from the work
// stream and drives the detector: content fetch, re-extraction, movement
// detection, persistence, notification. It is the only place in the
// system performing blocking external calls.
package changetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/tether/content"
	"github.com/c360studio/tether/notify"
	"github.com/c360studio/tether/reference"
	"github.com/c360studio/tether/storage"
	"github.com/c360studio/tether/track"
)

// changeTrackerSchema defines the configuration schema.
var changeTrackerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

var (
	metricEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tether_tracker_events_processed_total",
		Help: "Change events processed, by terminal status.",
	}, []string{"status"})
	metricConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tether_tracker_conflicts_total",
		Help: "File-deletion events that raised manual-resolution conflicts.",
	})
)

// Store is the persistence surface the tracker needs: the detector's
// store plus event lookup by id.
type Store interface {
	track.Store
	GetEvent(ctx context.Context, id string) (reference.CodeChangeEvent, error)
}

// Component implements the change-tracker processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	store    Store
	detector *track.Detector

	// Lifecycle management
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Metrics
	processed      atomic.Int64
	failed         atomic.Int64
	errors         atomic.Int64
	lastActivityMu sync.RWMutex
	lastActivity   time.Time
}

// NewComponent creates a new change-tracker processor component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Component{
		name:       "change-tracker",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	return nil
}

// Start begins consuming pending change events.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.stopOnStartFailure()
		return fmt.Errorf("get jetstream: %w", err)
	}

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		c.stopOnStartFailure()
		return fmt.Errorf("open store: %w", err)
	}
	c.store = store

	var providerOpts []content.GitHubOption
	if c.config.GitHubToken != "" {
		providerOpts = append(providerOpts, content.WithToken(c.config.GitHubToken))
	}
	if c.config.GitHubBaseURL != "" {
		providerOpts = append(providerOpts, content.WithBaseURL(c.config.GitHubBaseURL))
	}
	provider := content.NewGitHubProvider(c.config.GetFetchTimeout(), providerOpts...)

	var sink notify.Sink
	if c.config.NotifyURL != "" {
		sink = notify.NewWebhookSink(c.config.NotifyURL, c.config.GetNotifyTimeout())
	}
	dispatcher := notify.NewDispatcher(sink, c.logger)

	c.detector = track.NewDetector(store, provider, dispatcher, c.logger)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeMessages(runCtx, js)
	}()

	c.logger.Info("Change tracker started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"batch_size", c.config.GetBatchSize())

	return nil
}

func (c *Component) stopOnStartFailure() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// consumeMessages fetches pending event ids in batches and processes them.
func (c *Component) consumeMessages(ctx context.Context, js jetstream.JetStream) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, c.config.StreamName, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: storage.ChangeSubjectPrefix + ">",
	})
	if err != nil {
		c.logger.Error("Failed to create consumer", "error", err, "stream", c.config.StreamName)
		return
	}

	c.logger.Info("Consumer connected", "stream", c.config.StreamName, "consumer", c.config.ConsumerName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(c.config.GetBatchSize(), jetstream.FetchMaxWait(c.config.GetFetchMaxWait()))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // Timeout, try again
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				// NAK the current message so it can be redelivered
				_ = msg.Nak()
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage processes one pending event id.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	c.updateLastActivity()

	eventID := strings.TrimSpace(string(msg.Data()))
	if eventID == "" {
		c.logger.Warn("Empty event id on work stream", "subject", msg.Subject())
		c.errors.Add(1)
		_ = msg.Ack() // nothing to retry
		return
	}

	if err := c.processEventID(ctx, eventID); err != nil {
		c.logger.Error("Event processing failed", "event_id", eventID, "error", err)
		c.errors.Add(1)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}

// processEventID loads and runs one event through the detector. Event
// bookkeeping errors (not per-reference failures) are returned so the
// message is redelivered; a failed event is acked and waits for an
// explicit external re-queue.
func (c *Component) processEventID(ctx context.Context, eventID string) error {
	ev, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}

	// At-most-once to success: a redelivered id for a finished event is a no-op.
	switch ev.ProcessingStatus {
	case reference.ProcessingCompleted, reference.ProcessingFailed:
		return nil
	}

	done, err := c.detector.ProcessEvent(ctx, ev)
	if err != nil {
		return err
	}

	metricEventsProcessed.WithLabelValues(string(done.ProcessingStatus)).Inc()
	if done.ProcessingStatus == reference.ProcessingFailed {
		c.failed.Add(1)
	} else {
		c.processed.Add(1)
	}
	if done.ChangeType == reference.ChangeDeleted {
		metricConflicts.Inc()
	}

	c.logger.Info("Event processed",
		"event_id", done.ID,
		"file", done.FilePath,
		"status", done.ProcessingStatus,
		"references", len(done.AffectedReferences))
	return nil
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}

// Stop gracefully stops the component within the given timeout.
func (c *Component) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		// Graceful shutdown completed
	case <-time.After(timeout):
		err = fmt.Errorf("stop timed out after %v", timeout)
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Change tracker stopped",
		"events_processed", c.processed.Load(),
		"events_failed", c.failed.Load(),
		"errors", c.errors.Load())

	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "change-tracker",
		Type:        "processor",
		Description: "Consumes change events and re-validates code references",
		Version:     "0.1.0",
	}
}

// InputPorts declares the work-stream input.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "changes.in",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Pending change-event ids",
			Config: component.JetStreamPort{
				StreamName: storage.ChangeStream,
				Subjects:   []string{storage.ChangeSubjectPrefix + ">"},
			},
		},
	}
}

// OutputPorts returns an empty port list; results are written to KV.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return changeTrackerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastActivity(),
	}
}
