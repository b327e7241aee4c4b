// Package main provides the outbox relay entry point. It forwards committed
// outbox entries to Redpanda.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/config"
	"github.com/drfirst/go-rxportal/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxportal/internal/infrastructure/redpanda"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
	"github.com/drfirst/go-rxportal/internal/observability/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		zap.NewExample().Fatal("logger build failed", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.OutboxEnabled() || !cfg.StreamingEnabled() {
		logger.Fatal("outbox relay requires DATABASE_URL and KAFKA_BROKERS")
	}

	ctx := context.Background()

	traceCfg := tracing.NewConfig("outbox-relay", "", cfg.OTLPEndpoint, cfg.TracingEnabled)
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := metrics.New(nil)

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("outbox schema failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Make sure every topic exists before the first send
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	relayCfg := postgres.DefaultRelayConfig()
	relayCfg.PollInterval = cfg.RelayPollInterval
	relayCfg.OnPending = func(n int64) { m.OutboxPending.Set(float64(n)) }
	relay := postgres.NewRelay(pool, producer, relayCfg, logger)

	relay.Start()
	logger.Info("outbox relay started")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(m, pool, producer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	relay.Stop()

	if stats, err := relay.Stats(shutdownCtx); err == nil {
		logger.Info("outbox relay stopped",
			zap.Int64("pending", stats.Pending),
			zap.Int64("processed_24h", stats.Processed24h),
			zap.Int64("failed", stats.Failed))
	}
}

func opsRouter(m *metrics.Metrics, pool *pgxpool.Pool, producer *redpanda.Producer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := producer.Ping(r.Context()); err != nil {
			http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
