package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/ledger-ingest/internal/config"
	"github.com/josh-kwaku/ledger-ingest/internal/logging"
	"github.com/josh-kwaku/ledger-ingest/internal/metrics"
	"github.com/josh-kwaku/ledger-ingest/internal/queue"
	"github.com/josh-kwaku/ledger-ingest/internal/repository"
	"github.com/josh-kwaku/ledger-ingest/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("ledger-ingest", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	client, err := queue.Connect(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		slog.Error("failed to ping redis", "error", err)
		os.Exit(1)
	}
	pingCancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ingestMetrics := metrics.New(reg)

	writer := service.NewEventWriter(repository.NewEventRepository(db), logger)
	digester := service.NewDigester(repository.NewTransactionRepository(db), logger)

	consumerBase := cfg.ConsumerName
	if consumerBase == "" {
		if host, err := os.Hostname(); err == nil {
			consumerBase = host
		} else {
			consumerBase = "ledger-ingest"
		}
	}

	gatewayCfg := queue.Config{
		Stream:        cfg.EventStream,
		Group:         cfg.ConsumerGroup,
		BatchSize:     cfg.BatchSize,
		ReceiveWait:   time.Duration(cfg.ReceiveWaitS) * time.Second,
		Visibility:    time.Duration(cfg.VisibilityS) * time.Second,
		MaxDeliveries: cfg.MaxDeliveries,
		MaxLen:        cfg.StreamMaxLen,
	}

	setupGateway := queue.NewGateway(client, gatewayCfg, logger)
	if err := setupGateway.EnsureGroup(ctx); err != nil {
		slog.Error("failed to create consumer group", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for i := range cfg.Workers {
		workerCfg := gatewayCfg
		workerCfg.Consumer = fmt.Sprintf("%s-%d", consumerBase, i+1)
		workerLogger := logger.With("consumer", workerCfg.Consumer)

		dispatcher := service.NewDispatcher(
			queue.NewGateway(client, workerCfg, workerLogger),
			writer,
			digester,
			ingestMetrics,
			workerLogger,
			time.Duration(cfg.RetryDelayS)*time.Second,
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", handleHealth)

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("ingest workers started", "workers", cfg.Workers, "stream", cfg.EventStream)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server forced to shutdown", "error", err)
	}
	slog.Info("stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
