// Package main provides the notification relay entry point. It consumes
// notification events and delivers them by email and SMS.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sendgrid/sendgrid-go"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/config"
	"github.com/drfirst/go-rxportal/internal/delivery"
	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/internal/infrastructure/redpanda"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
	"github.com/drfirst/go-rxportal/internal/observability/tracing"
	"github.com/drfirst/go-rxportal/pkg/circuitbreaker"
	"github.com/drfirst/go-rxportal/pkg/idempotency"
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

	if !cfg.StreamingEnabled() {
		logger.Fatal("notification relay requires KAFKA_BROKERS")
	}

	ctx := context.Background()

	traceCfg := tracing.NewConfig("notification-relay", "", cfg.OTLPEndpoint, cfg.TracingEnabled)
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := metrics.New(nil)

	// Deliveries are deduplicated in Postgres when available so restarts
	// and rebalances do not resend.
	var store idempotency.Store = idempotency.NewMemoryStore()
	if cfg.OutboxEnabled() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		pg := idempotency.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("inbox schema failed", zap.Error(err))
		}
		store = pg
	}
	inbox := idempotency.New(store, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	breakerCfg := circuitbreaker.DefaultConfig("")
	breakerCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.BreakerStateChanged(name, to.Gauge())
	}
	breakers := circuitbreaker.NewManager(breakerCfg, logger)

	dispatcher, err := delivery.NewDispatcher(delivery.DispatcherConfig{
		Senders:   senders(cfg, logger),
		Recipient: delivery.Recipient{Email: cfg.AlertEmailTo, Phone: cfg.AlertSMSTo},
		Breakers:  breakers,
		Inbox:     inbox,
		OnResult: func(ch delivery.Channel, result string) {
			m.DeliveriesSent.WithLabelValues(string(ch), result).Inc()
		},
	}, logger)
	if err != nil {
		logger.Fatal("dispatcher creation failed", zap.Error(err))
	}

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.GroupID = cfg.ConsumerGroup
	consumerCfg.Topics = []string{events.TopicNotificationEvents}

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.Message) error {
		var e events.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			return fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
		}
		return dispatcher.HandleEvent(ctx, &e)
	}, redpanda.DeadLetterTo(producer), logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}

	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	defer admin.Close()
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}

	consumer.Start()
	logger.Info("notification relay started",
		zap.String("group", cfg.ConsumerGroup),
		zap.Strings("brokers", cfg.KafkaBrokers))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(m, consumer, breakers, admin, cfg.ConsumerGroup),
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
	consumer.Stop()

	stats := consumer.Stats()
	logger.Info("notification relay stopped",
		zap.Int64("messages_read", stats.MessagesRead),
		zap.Int64("failed", stats.Failed))
}

func senders(cfg *config.Config, logger *zap.Logger) map[delivery.Channel]delivery.Sender {
	out := map[delivery.Channel]delivery.Sender{}
	if cfg.EmailEnabled() {
		emailCfg := delivery.DefaultEmailConfig()
		emailCfg.APIKey = cfg.SendGridAPIKey
		emailCfg.FromEmail = cfg.AlertEmailFrom
		out[delivery.ChannelEmail] = delivery.NewEmailSender(sendgrid.NewSendClient(cfg.SendGridAPIKey), emailCfg, logger)
	} else {
		logger.Warn("email delivery disabled: SENDGRID_API_KEY or ALERT_EMAIL_TO not set")
	}
	if cfg.AlertSMSTo != "" {
		out[delivery.ChannelSMS] = delivery.NewLogSMSSender(logger)
	}
	return out
}

func opsRouter(m *metrics.Metrics, consumer *redpanda.Consumer, breakers *circuitbreaker.Manager, admin *redpanda.Admin, group string) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":   "healthy",
			"consumer": consumer.Stats(),
			"breakers": breakers.Health(),
		}
		code := http.StatusOK
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if lag, err := admin.GroupLag(ctx, group); err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			body["lag"] = lag
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}
