// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deal-coach/internal/common/camunda"
	"deal-coach/internal/common/config"
	"deal-coach/internal/common/logger"
	"deal-coach/internal/common/metrics"
	"deal-coach/internal/common/observability"
	"deal-coach/internal/dealcontext"
	"deal-coach/internal/store"

	bcp "deal-coach/internal/workers/deal-coaching/build-coaching-prompt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
		zap.String("storeBackend", cfg.Store.Backend),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("OpenTelemetry meter unavailable, continuing without it", zap.Error(err))
	}

	ctx := context.Background()

	docs, err := store.Open(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("document store unavailable", zap.Error(err))
	}
	defer docs.Close()

	aggregator := dealcontext.NewAggregator(docs.Store, log, metrics.NewRecorder(obs), dealcontext.Options{
		MaxConcurrentFetches: cfg.Context.MaxConcurrentFetches,
		BranchTimeout:        config.GetDuration(cfg.Context.BranchTimeout),
	})

	camundaClient, err := camunda.NewClient(cfg.Camunda)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer camundaClient.Close()
	zapLog.Info("Zeebe client connected successfully", zap.String("broker", cfg.Camunda.BrokerAddress))

	handler, err := bcp.NewHandler(bcp.HandlerOptions{
		AppConfig: cfg,
		Builder:   aggregator,
		Observer:  obs,
		Logger:    log,
	})
	if err != nil {
		zapLog.Fatal("worker setup failed", zap.String("worker", bcp.WorkerName), zap.Error(err))
	}

	var workers []worker.JobWorker
	if jw := camunda.StartWorker(camundaClient.GetClient(), bcp.TaskType,
		config.GetWorkerConfig(cfg, bcp.WorkerName), handler, log); jw != nil {
		workers = append(workers, jw)
	}

	server := newServer(cfg.Metrics.Address, camundaClient)
	go func() {
		zapLog.Info("Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("metrics server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("meter shutdown failed", zap.Error(err))
	}
	zapLog.Info("Worker manager stopped")
}

func newServer(addr string, client *camunda.Client) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := client.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
