package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDeliveryFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tether_notify_delivery_failed_total",
	Help: "Notification payloads that could not be delivered.",
})

// Sink delivers a single notification payload. Implementations carry
// their own timeouts; the dispatcher treats any error as a delivery
// failure and moves on.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

// WebhookSink posts payloads as JSON to a configured endpoint.
type WebhookSink struct {
	client *http.Client
	url    string
}

// NewWebhookSink creates a sink posting to url with the given timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Send posts the payload. Non-2xx responses are errors.
func (s *WebhookSink) Send(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher wraps a sink with best-effort semantics. A nil sink silently
// drops payloads, so notification wiring is optional end to end.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given sink.
func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sink: sink, logger: logger}
}

// Send attempts delivery of one payload. Errors are logged, never
// returned: notification outcome must not affect the tracking flow.
func (d *Dispatcher) Send(ctx context.Context, p Payload) {
	if d.sink == nil {
		return
	}
	if p.SentAt.IsZero() {
		p.SentAt = time.Now().UTC()
	}
	if err := d.sink.Send(ctx, p); err != nil {
		metricDeliveryFailed.Inc()
		d.logger.Warn("Notification delivery failed",
			"kind", p.Kind,
			"reference_id", p.ReferenceID,
			"error", err)
	}
}

// SendAll attempts every payload regardless of individual failures
// (all-settled semantics) and returns the number delivered.
func (d *Dispatcher) SendAll(ctx context.Context, payloads []Payload) int {
	delivered := 0
	for _, p := range payloads {
		if d.sink == nil {
			continue
		}
		if p.SentAt.IsZero() {
			p.SentAt = time.Now().UTC()
		}
		if err := d.sink.Send(ctx, p); err != nil {
			metricDeliveryFailed.Inc()
			d.logger.Warn("Notification delivery failed",
				"kind", p.Kind,
				"reference_id", p.ReferenceID,
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}
