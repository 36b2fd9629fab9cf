// Command communitycore runs the record-management HTTP service.
//
// Configuration is environment-driven; a .env file in the working directory
// is loaded when present. See internal/core.OpenPersistentStore and
// internal/blob.OpenFromEnv for the storage variables.
package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"communitycore/internal/adapters/records"
	"communitycore/internal/adapters/reports"
	"communitycore/internal/blob"
	"communitycore/internal/core"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	blobStore, err := blob.OpenFromEnv(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	promRecorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return err
	}
	expvarRecorder := core.NewExpvarMetricsRecorder("communitycore_metrics")
	metrics := core.CombineMetricsRecorders(promRecorder, expvarRecorder)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
	}
	if os.Getenv("COMMUNITYCORE_TRACE") == "1" {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stdout)))
	}
	service := core.NewService(store, opts...)

	worker := reports.NewWorker(service, blobStore, reports.NewSlogAuditLog(logger))
	worker.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := worker.Stop(shutdownCtx); err != nil {
			logger.Error("report worker stop", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/api/v1/reports", reports.NewHandler(worker, blobStore))
	mux.Handle("/api/v1/reports/", reports.NewHandler(worker, blobStore))
	mux.Handle("/api/v1/", records.NewHandler(service))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	addr := os.Getenv("COMMUNITYCORE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "blob_driver", blobStore.Driver())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func closeStore(store any, logger *slog.Logger) {
	switch s := store.(type) {
	case interface{ Close() error }:
		if err := s.Close(); err != nil {
			logger.Error("store close", "error", err)
		}
	case interface{ Close(context.Context) error }:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			logger.Error("store close", "error", err)
		}
	}
}
