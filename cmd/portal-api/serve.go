package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sendgrid/sendgrid-go"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/api"
	"github.com/drfirst/go-rxportal/internal/api/handlers"
	"github.com/drfirst/go-rxportal/internal/api/middleware"
	"github.com/drfirst/go-rxportal/internal/config"
	"github.com/drfirst/go-rxportal/internal/delivery"
	"github.com/drfirst/go-rxportal/internal/domain/accessibility"
	"github.com/drfirst/go-rxportal/internal/domain/consultation"
	"github.com/drfirst/go-rxportal/internal/domain/lifecycle"
	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/domain/prescription"
	"github.com/drfirst/go-rxportal/internal/domain/queue"
	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/internal/infrastructure/postgres"
	"github.com/drfirst/go-rxportal/internal/infrastructure/redpanda"
	"github.com/drfirst/go-rxportal/internal/observability/metrics"
	"github.com/drfirst/go-rxportal/internal/observability/tracing"
	"github.com/drfirst/go-rxportal/internal/portal"
	"github.com/drfirst/go-rxportal/pkg/circuitbreaker"
	"github.com/drfirst/go-rxportal/pkg/idempotency"
	"github.com/drfirst/go-rxportal/pkg/workerpool"
)

const serviceName = "portal-api"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Observability
	traceCfg := tracing.NewConfig(serviceName, version, cfg.OTLPEndpoint, cfg.TracingEnabled)
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	m := metrics.New(nil)

	breakerCfg := circuitbreaker.DefaultConfig("")
	breakerCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.BreakerStateChanged(name, to.Gauge())
	}
	breakers := circuitbreaker.NewManager(breakerCfg, logger)

	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.Workers
	poolCfg.OnFailure = func(job workerpool.Job, err error) {
		logger.Error("background job failed", zap.String("job", job.Name), zap.Error(err))
	}
	pool := workerpool.New(poolCfg, logger)
	pool.Start()
	defer pool.Stop()

	checks := map[string]handlers.CheckFunc{}

	// Event publishing: outbox when a database is configured, otherwise
	// straight to the broker, otherwise discarded.
	var (
		publisher events.Publisher = events.Nop
		db        *pgxpool.Pool
	)
	switch {
	case cfg.OutboxEnabled():
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		// Drain queued publishes before the pool closes.
		defer func() {
			pool.Stop()
			db.Close()
		}()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure outbox schema: %w", err)
		}
		checks["postgres"] = db.Ping
		publisher = events.NewAsyncPublisher(postgres.NewOutboxPublisher(db), pool, logger)
		logger.Info("publishing events to outbox")

	case cfg.StreamingEnabled():
		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err := redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			return fmt.Errorf("create producer: %w", err)
		}
		defer func() {
			pool.Stop()
			producer.Close()
		}()
		breaker, err := breakers.Get("redpanda")
		if err != nil {
			return err
		}
		checks["redpanda"] = producer.Ping
		publisher = events.NewAsyncPublisher(redpanda.NewEventPublisher(producer, breaker), pool, logger)
		logger.Info("publishing events to redpanda", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	// Stores
	alerts := delivery.NewToastFeed(0)
	prescriptions := prescription.NewStore()
	notifications := notification.NewStore(cfg.ActingUserID, alerts, logger)
	consultations := consultation.NewStore()
	pickups := accessibility.NewStore()
	if cfg.SeedDemoData {
		now := time.Now()
		if err := prescriptions.Seed(prescription.DemoPrescriptions()...); err != nil {
			return fmt.Errorf("seed prescriptions: %w", err)
		}
		if err := notifications.Seed(notification.DemoNotifications(cfg.ActingUserID, now)...); err != nil {
			return fmt.Errorf("seed notifications: %w", err)
		}
		if err := consultations.Seed(consultation.DemoConsultations(cfg.ActingUserID, now)...); err != nil {
			return fmt.Errorf("seed consultations: %w", err)
		}
	}

	if cfg.EmailEnabled() || cfg.AlertSMSTo != "" {
		inbox, err := newInbox(ctx, db, logger)
		if err != nil {
			return err
		}
		defer inbox.Stop()
		dispatcher, err := newDispatcher(cfg, inbox, breakers, pool, m, logger)
		if err != nil {
			return err
		}
		notifications.OnCreate(dispatcher.Listen)
		logger.Info("in-process notification delivery enabled")
	}

	svc, err := portal.New(portal.Config{
		Prescriptions: prescriptions,
		Notifications: notifications,
		Consultations: consultations,
		Pickups:       pickups,
		Publisher:     publisher,
		Metrics:       m,
		Correlation:   middleware.GetRequestID,
	}, logger)
	if err != nil {
		return err
	}

	lc := lifecycle.NewSimulator(prescriptions, notifications, lifecycle.Config{
		MinDelay: cfg.LifecycleMinDelay,
		MaxDelay: cfg.LifecycleMaxDelay,
		OnReady:  svc.PrescriptionReady,
	}, logger)
	defer lc.Stop()
	rearmer := &gaugedRearmer{sim: lc, metrics: m}
	svc.SetLifecycle(rearmer)
	rearmer.Arm(ctx)

	qs, err := queue.NewSimulator(queue.Info{
		Position:          cfg.QueueStartPosition,
		EstimatedWaitTime: cfg.QueueWaitMinutes,
		TotalInQueue:      cfg.QueueTotal,
	}, notifications, queue.Config{
		Interval: cfg.QueueTickInterval,
		Observer: func(info queue.Info) { m.QueuePosition.Set(float64(info.Position)) },
	}, logger)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	qs.Start()
	defer qs.Stop()

	router := api.NewRouter(api.Config{
		ServiceName: serviceName,
		ActingUser:  cfg.ActingUserID,
		APIKeys:     cfg.APIKeys,
		Service:     svc,
		Queue:       qs,
		Alerts:      alerts,
		Metrics:     m,
		Health: handlers.HealthConfig{
			Service:  serviceName,
			Version:  version,
			Checks:   checks,
			Breakers: breakers,
			Pool:     pool,
		},
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting portal API",
		zap.String("port", cfg.Port),
		zap.String("acting_user", cfg.ActingUserID),
		zap.Bool("tracing", tp.Enabled()))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// gaugedRearmer reports the pending timer count after every arm
type gaugedRearmer struct {
	sim     *lifecycle.Simulator
	metrics *metrics.Metrics
}

func (g *gaugedRearmer) Arm(ctx context.Context) int {
	n := g.sim.Arm(ctx)
	g.metrics.LifecyclePending.Set(float64(len(g.sim.Pending())))
	return n
}

func newInbox(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (*idempotency.Inbox, error) {
	var store idempotency.Store = idempotency.NewMemoryStore()
	if db != nil {
		pg := idempotency.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure inbox schema: %w", err)
		}
		store = pg
	}
	inbox := idempotency.New(store, idempotency.DefaultConfig(), logger)
	inbox.StartCleanup()
	return inbox, nil
}

func newDispatcher(cfg *config.Config, inbox *idempotency.Inbox, breakers *circuitbreaker.Manager, pool *workerpool.Pool, m *metrics.Metrics, logger *zap.Logger) (*delivery.Dispatcher, error) {
	senders := map[delivery.Channel]delivery.Sender{}
	if cfg.EmailEnabled() {
		emailCfg := delivery.DefaultEmailConfig()
		emailCfg.APIKey = cfg.SendGridAPIKey
		emailCfg.FromEmail = cfg.AlertEmailFrom
		senders[delivery.ChannelEmail] = delivery.NewEmailSender(sendgrid.NewSendClient(cfg.SendGridAPIKey), emailCfg, logger)
	}
	if cfg.AlertSMSTo != "" {
		senders[delivery.ChannelSMS] = delivery.NewLogSMSSender(logger)
	}

	return delivery.NewDispatcher(delivery.DispatcherConfig{
		Senders:   senders,
		Recipient: delivery.Recipient{Email: cfg.AlertEmailTo, Phone: cfg.AlertSMSTo},
		Breakers:  breakers,
		Inbox:     inbox,
		Pool:      pool,
		OnResult: func(ch delivery.Channel, result string) {
			m.DeliveriesSent.WithLabelValues(string(ch), result).Inc()
		},
	}, logger)
}
