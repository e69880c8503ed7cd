// trainer-service is the HTTP API server for managing model training jobs.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mltrain/internal/api"
	"mltrain/internal/blob"
	"mltrain/internal/config"
	"mltrain/internal/health"
	"mltrain/internal/job"
	"mltrain/internal/notify"
	"mltrain/internal/observability"
	"mltrain/internal/runner/docker"
	"mltrain/internal/store"
	"mltrain/internal/store/postgres"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	notifyCfg := notify.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Select the job store: Postgres when configured, in-memory otherwise
	var jobStore job.Store
	if svcCfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, svcCfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		jobStore = pg
		slog.Info("Using Postgres job store")
	} else {
		jobStore = store.NewMemory()
		slog.Warn("Using in-memory job store - jobs are lost on restart")
	}

	// Filesystem blob store for datasets and artifacts
	blobs, err := blob.NewFS(svcCfg.DataDir)
	if err != nil {
		return err
	}
	slog.Info("Blob store ready", "dataDir", svcCfg.DataDir)

	// Docker-backed training runner
	trainRunner, err := docker.NewRunner(docker.Config{
		Image:   svcCfg.TrainerImage,
		DataDir: svcCfg.DataDir,
	})
	if err != nil {
		return err
	}
	defer trainRunner.Close()
	slog.Info("Connected to Docker daemon", "trainerImage", svcCfg.TrainerImage)

	// Webhook notifier for lifecycle events
	notifier := notify.NewDispatcher(notifyCfg, metrics)

	// Orchestrator core
	jobService := job.NewService(jobStore, blobs, trainRunner, notifier, metrics)

	// Health checker over the stores the service cannot run without
	healthChecker := health.NewChecker(map[string]health.CheckFunc{
		"store": jobStore.Ping,
		"blobs": blobs.Ping,
	})

	// API router
	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		MaxUploadSize: svcCfg.MaxUploadSize,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // dataset uploads can be large
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Wait for in-flight training tasks. Tasks that outlive the
	// drain window are cancelled and their jobs marked failed by supervision.
	slog.Info("Waiting for in-flight training tasks", "timeout", svcCfg.TrainingDrainWait)
	trainingCtx, trainingCancel := context.WithTimeout(context.Background(), svcCfg.TrainingDrainWait)
	defer trainingCancel()
	if err := jobService.Drain(trainingCtx); err != nil {
		slog.Warn("Training drain timed out, tasks cancelled", "error", err)
	}

	// Phase 4: Drain the webhook dispatcher so terminal events get out
	slog.Info("Draining webhook dispatcher")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := notifier.Close(notifierCtx); err != nil {
		slog.Warn("Webhook dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := notifier.Stats()
	slog.Info("Webhook dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
