package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/tether/config"
	changetracker "github.com/c360studio/tether/processor/change-tracker"
	referenceapi "github.com/c360studio/tether/processor/reference-api"
	webhookingester "github.com/c360studio/tether/processor/webhook-ingester"
)

// runnable is the lifecycle surface every processor component exposes.
type runnable interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Health() component.HealthStatus
	Meta() component.Metadata
}

// httpRegistrar is implemented by components serving HTTP endpoints.
type httpRegistrar interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// App wires NATS, the processor components, and the HTTP server together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsClient     *natsclient.Client
	httpServer     *http.Server

	components []runnable
}

// NewApp creates the application from validated configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Start brings up NATS, builds and starts the components, and begins
// serving HTTP.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	if err := a.buildComponents(); err != nil {
		return fmt.Errorf("build components: %w", err)
	}

	for _, c := range a.components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", c.Meta().Name, err)
		}
	}
	for _, c := range a.components {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Meta().Name, err)
		}
		a.logger.Info("Component started", "name", c.Meta().Name)
	}

	a.startHTTP()
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	url := a.cfg.NATS.URL

	if url == "" || a.cfg.NATS.Embedded {
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  a.cfg.NATS.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns
		url = ns.ClientURL()
	}

	a.logger.Info("Connecting to NATS", "url", url)
	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("wait for NATS connection: %w", err)
	}

	a.natsClient = client
	return nil
}

// buildComponents registers the component factories and instantiates each
// processor with its config section.
func (a *App) buildComponents() error {
	registry := component.NewRegistry()
	if err := webhookingester.Register(registry); err != nil {
		return fmt.Errorf("register webhook-ingester: %w", err)
	}
	if err := changetracker.Register(registry); err != nil {
		return fmt.Errorf("register change-tracker: %w", err)
	}
	if err := referenceapi.Register(registry); err != nil {
		return fmt.Errorf("register reference-api: %w", err)
	}

	deps := component.Dependencies{
		NATSClient: a.natsClient,
		Logger:     a.logger,
	}

	specs := []struct {
		name    string
		factory func(json.RawMessage, component.Dependencies) (component.Discoverable, error)
		config  map[string]any
	}{
		{
			name:    "webhook-ingester",
			factory: webhookingester.NewComponent,
			config: map[string]any{
				"secret":         a.cfg.Webhook.Secret,
				"ignore_globs":   a.cfg.Webhook.IgnoreGlobs,
				"max_body_bytes": a.cfg.Webhook.MaxBodyBytes,
			},
		},
		{
			name:    "change-tracker",
			factory: changetracker.NewComponent,
			config: map[string]any{
				"batch_size":      a.cfg.Tracker.BatchSize,
				"fetch_max_wait":  a.cfg.Tracker.FetchMaxWait.String(),
				"github_token":    a.cfg.GitHub.Token,
				"github_base_url": a.cfg.GitHub.BaseURL,
				"fetch_timeout":   a.cfg.GitHub.FetchTimeout.String(),
				"notify_url":      a.cfg.Notify.URL,
				"notify_timeout":  a.cfg.Notify.Timeout.String(),
			},
		},
		{
			name:    "reference-api",
			factory: referenceapi.NewComponent,
			config: map[string]any{
				"github_token":    a.cfg.GitHub.Token,
				"github_base_url": a.cfg.GitHub.BaseURL,
				"fetch_timeout":   a.cfg.GitHub.FetchTimeout.String(),
			},
		},
	}

	for _, spec := range specs {
		raw, err := json.Marshal(spec.config)
		if err != nil {
			return fmt.Errorf("marshal %s config: %w", spec.name, err)
		}
		disc, err := spec.factory(raw, deps)
		if err != nil {
			return fmt.Errorf("create %s: %w", spec.name, err)
		}
		run, ok := disc.(runnable)
		if !ok {
			return fmt.Errorf("%s does not implement the component lifecycle", spec.name)
		}
		a.components = append(a.components, run)
	}

	return nil
}

// startHTTP mounts the component endpoints, health, and metrics, and
// serves in the background.
func (a *App) startHTTP() {
	mux := http.NewServeMux()

	for _, c := range a.components {
		reg, ok := c.(httpRegistrar)
		if !ok {
			continue
		}
		switch c.Meta().Name {
		case "webhook-ingester":
			reg.RegisterHTTPHandlers("api/webhook", mux)
		case "reference-api":
			reg.RegisterHTTPHandlers("api", mux)
		}
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", a.handleHealthz)

	a.httpServer = &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", "error", err)
		}
	}()
}

// handleHealthz reports aggregate component health: 200 when every
// component is healthy, 503 otherwise.
func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type componentHealth struct {
		Name    string `json:"name"`
		Status  string `json:"status"`
		Healthy bool   `json:"healthy"`
	}

	healthy := true
	out := make([]componentHealth, 0, len(a.components))
	for _, c := range a.components {
		h := c.Health()
		healthy = healthy && h.Healthy
		out = append(out, componentHealth{
			Name:    c.Meta().Name,
			Status:  h.Status,
			Healthy: h.Healthy,
		})
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy":    healthy,
		"components": out,
	})
}

// Shutdown stops HTTP, the components in reverse start order, and NATS.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP shutdown error", "error", err)
		}
	}

	for i := len(a.components) - 1; i >= 0; i-- {
		c := a.components[i]
		if err := c.Stop(timeout); err != nil {
			a.logger.Warn("Component stop error", "name", c.Meta().Name, "error", err)
		}
	}

	if a.natsClient != nil {
		if err := a.natsClient.Close(ctx); err != nil {
			a.logger.Warn("NATS close error", "error", err)
		}
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
