package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenantkit/secrets/internal/app"
	"github.com/tenantkit/secrets/internal/config"
)

// RunServeMetrics starts the Prometheus metrics HTTP server with graceful
// shutdown support. Exposes /metrics in Prometheus exposition format and
// /healthz reporting cache and provider reachability. Blocks until receiving
// SIGINT/SIGTERM or encountering a fatal error.
func RunServeMetrics(ctx context.Context) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	if !cfg.MetricsEnabled {
		return errors.New("metrics are disabled, set METRICS_ENABLED=true")
	}

	metricsProvider, err := container.MetricsProvider()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics provider: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsProvider.Handler())
	mux.HandleFunc("/healthz", healthzHandler(container))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting metrics server", slog.Int("port", cfg.MetricsPort))

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
	case err := <-serverErr:
		return err
	}

	return nil
}

// healthzHandler reports cache and provider reachability. Component failures
// yield 503 with per-component detail; the handler itself never panics on a
// partially initialized container.
func healthzHandler(container *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		components := map[string]string{}
		healthy := true

		if c, err := container.Cache(ctx); err != nil {
			components["cache"] = err.Error()
			healthy = false
		} else if err := c.HealthCheck(ctx); err != nil {
			components["cache"] = err.Error()
			healthy = false
		} else {
			components["cache"] = "ok"
		}

		if p, err := container.Provider(ctx); err != nil {
			components["provider"] = err.Error()
			healthy = false
		} else if status, err := p.HealthCheck(ctx); err != nil {
			components["provider"] = err.Error()
			healthy = false
		} else if !status.Healthy {
			components["provider"] = status.Detail
			healthy = false
		} else {
			components["provider"] = "ok"
		}

		statusText := "ok"
		code := http.StatusOK
		if !healthy {
			statusText = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     statusText,
			"components": components,
		})
	}
}
