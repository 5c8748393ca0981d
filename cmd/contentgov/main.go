// Package main provides the contentgov binary entry point.
// Contentgov is the content governance and lifecycle service for
// generated detection artifacts: it tracks each item through a
// branch/review/merge workflow and a fixed DDLC phase sequence, and
// serves analytics over the item set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/detectops/contentgov/analytics"
	"github.com/detectops/contentgov/config"
	"github.com/detectops/contentgov/governance"
	"github.com/detectops/contentgov/httpapi"
	"github.com/detectops/contentgov/storage"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "contentgov"
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
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "contentgov",
		Short: "Content governance and lifecycle service",
		Long: `Contentgov tracks generated detection content (correlation rules,
playbooks, alert layouts, dashboards) through a branch/review/merge
workflow and a fixed DDLC phase sequence, maintains the fork and
dependency graph between items, and serves governance analytics.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the governance HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serve(configPath, logLevel string) error {
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

	ctx := context.Background()

	// Open the configured store backend
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := governance.NewEngine(store, governance.WithLogger(logger))
	aggregator := analytics.NewAggregator(store,
		analytics.WithBottleneckShare(cfg.Analytics.BottleneckShare),
		analytics.WithRecentLimit(cfg.Analytics.RecentLimit),
	)

	mux := http.NewServeMux()
	handler := httpapi.NewHandler(engine, aggregator, cfg.HTTP.DefaultActor, logger)
	handler.RegisterHTTPHandlers("", mux)
	httpapi.RegisterMetricsHandler(mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Contentgov ready",
			"version", Version,
			"listen", cfg.HTTP.Listen,
			"store", cfg.Store.Backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}

	logger.Info("Contentgov shutdown complete")
	return nil
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

// openStore opens the configured store backend, returning a cleanup
// function for resources that need closing.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), func() {}, nil

	case config.BackendBadger:
		store, err := storage.OpenBadgerStore(storage.BadgerConfig{
			Path:       cfg.Store.Path,
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("Error closing store", "error", err)
			}
		}, nil

	case config.BackendNATS:
		nc, err := connectToNATS(cfg.Store.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := storage.NewNATSStore(ctx, js)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("create NATS store: %w", err)
		}
		return store, nc.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func connectToNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		url = envURL
	}

	logger.Info("Connecting to NATS", "url", url)

	nc, err := nats.Connect(url,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, wrapNATSError(err, url)
	}

	logger.Info("Connected to NATS", "url", url)
	return nc, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
