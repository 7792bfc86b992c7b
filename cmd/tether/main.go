// Package main provides the tether binary entry point.
// Tether keeps documentation links to source code valid as the
// referenced repositories evolve.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/tether/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tether"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "tether",
		Short: "Code reference tracking service",
		Long: `Tether links documentation to exact source locations in remote
repositories and keeps those links valid as the repositories change.

It provides:
- Document ingestion: github:// code links become tracked references
- Webhook ingestion: signed push payloads become change events
- Change tracking: references are re-validated, relocated, or retired

All components communicate via NATS JetStream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, httpAddr, logLevel string) error {
	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := app.Start(signalCtx); err != nil {
		app.Shutdown(10 * time.Second)
		return fmt.Errorf("start: %w", err)
	}

	slog.Info("Tether ready",
		"version", Version,
		"http_addr", cfg.HTTP.Addr)

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	app.Shutdown(30 * time.Second)
	slog.Info("Tether shutdown complete")
	return nil
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.NewLoader(logger).Load()
}
