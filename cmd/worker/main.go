package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/bootstrap"
	"github.com/kirillkom/paperwork-pipeline/internal/config"
	"github.com/kirillkom/paperwork-pipeline/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	cfg.ProcessingDispatch = config.DispatchNATS
	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go sweepLoop(ctx, app, time.Duration(app.Config.CategorizationSweepIntervalSeconds)*time.Second, app.Config.CategorizationSweepLimit)

	slog.Info("worker_subscribed", "subject", app.Config.NATSSubject)
	return app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		result := app.ProcessUC.ProcessDocument(processCtx, documentID)
		if !result.OK {
			return errors.New(result.Error)
		}
		return nil
	})
}

func metricsMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// sweepLoop re-enqueues documents still waiting on their AI label.
func sweepLoop(ctx context.Context, app *bootstrap.App, interval time.Duration, limit int) {
	if interval <= 0 {
		slog.Info("categorization_sweep_disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.Scheduler.SweepPending(ctx, limit); err != nil {
				slog.Error("categorization_sweep_failed", "error", err)
			}
		}
	}
}
