// anotherai gateway server. Serves the OpenAI-compatible inference API
// and runs the background task workers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/anotherai-dev/anotherai/pkg/analytics"
	"github.com/anotherai-dev/anotherai/pkg/api"
	"github.com/anotherai-dev/anotherai/pkg/auth"
	"github.com/anotherai-dev/anotherai/pkg/billing"
	"github.com/anotherai-dev/anotherai/pkg/blob"
	"github.com/anotherai-dev/anotherai/pkg/bus"
	"github.com/anotherai-dev/anotherai/pkg/config"
	"github.com/anotherai-dev/anotherai/pkg/provider/factory"
	"github.com/anotherai-dev/anotherai/pkg/runner"
	"github.com/anotherai-dev/anotherai/pkg/services"
	"github.com/anotherai-dev/anotherai/pkg/storage"
	"github.com/anotherai-dev/anotherai/pkg/tasks"
	"github.com/anotherai-dev/anotherai/pkg/version"
)

func main() {
	// Load .env when present; deployed environments inject real env vars.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}

	// 1. Load configuration
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Configure logging
	logOpts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, logOpts)
	if cfg.Log.JSON {
		handler = slog.NewJSONHandler(os.Stderr, logOpts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting anotherai",
		"version", version.Full(),
		"env", cfg.EnvName,
		"http_port", cfg.HTTP.Port)

	// 3. Error capture
	if cfg.Telemetry.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Telemetry.SentryDSN,
			Environment: cfg.EnvName,
			Release:     version.Full(),
		}); err != nil {
			slog.Error("Failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()

	// 4. Relational store
	if err := storage.Migrate(cfg.Postgres.DSN); err != nil {
		slog.Error("Failed to migrate postgres", "error", err)
		os.Exit(1)
	}
	store, err := storage.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("Failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Connected to PostgreSQL")

	// 5. Analytical store
	analyticsStore, err := analytics.New(ctx, cfg.ClickHouse)
	if err != nil {
		slog.Error("Failed to connect to clickhouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := analyticsStore.Close(); err != nil {
			slog.Error("Error closing clickhouse connection", "error", err)
		}
	}()
	if err := analyticsStore.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate clickhouse", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to ClickHouse")

	// 6. Blob store for request file payloads
	blobStore, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		slog.Error("Failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	// 7. Task bus
	broker, err := bus.New(cfg.Broker)
	if err != nil {
		slog.Error("Failed to initialize task bus", "url", cfg.Broker.URL, "error", err)
		os.Exit(1)
	}

	// 8. Runner and services
	adapters := factory.New(cfg.Providers)
	completionRunner := runner.New(runner.Options{
		Adapters:     adapters,
		Cache:        analyticsStore,
		Emitter:      tasks.NewEmitter(broker),
		Files:        blobStore,
		CacheTimeout: cfg.ClickHouse.CacheLookupTimeout,
	})

	var payments billing.PaymentProvider
	if cfg.Telemetry.StripeAPIKey != "" {
		payments = billing.NewStripeProvider(cfg.Telemetry.StripeAPIKey)
	}
	billingService := billing.NewService(store, payments)

	agentService := services.NewAgentService(store)
	completionService := services.NewCompletionService(analyticsStore)
	deploymentService := services.NewDeploymentService(store)
	experimentService := services.NewExperimentService(store, analyticsStore, completionRunner, broker)
	viewService := services.NewViewService(store, analyticsStore)
	annotationService := services.NewAnnotationService(analyticsStore)
	slog.Info("Services initialized")

	// 9. Register task handlers and start workers
	registry := tasks.NewRegistry(analyticsStore, store, experimentService, billingService)
	registry.Register(broker)
	broker.Start(ctx)

	// 10. Authentication
	verifier, err := auth.NewVerifier(ctx, cfg.Auth, cfg.IsLocal())
	if err != nil {
		slog.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}
	authenticator := auth.New(store, verifier)

	// 11. HTTP server (non-blocking start)
	server := api.NewServer(api.Options{
		Authenticator: authenticator,
		Runner:        completionRunner,
		Publisher:     broker,
		Agents:        agentService,
		Completions:   completionService,
		Deployments:   deploymentService,
		Experiments:   experimentService,
		Views:         viewService,
		Annotations:   annotationService,
		Readiness:     []func(context.Context) error{store.Ping, analyticsStore.Ping},
		AuthServerURL: cfg.Auth.AuthorizationServerURL,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTP.Port
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("anotherai started successfully", "workers", cfg.Broker.Concurrency)

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: drain HTTP first so no new tasks are
	// published, then stop the workers.
	httpCtx, httpCancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		broker.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Task workers stopped gracefully")
	case <-time.After(cfg.Broker.TaskTimeout):
		slog.Warn("Task worker shutdown timeout exceeded, in-flight tasks will be retried")
	}

	slog.Info("Shutdown complete")
}
