package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/pkg/circuitbreaker"
)

// ProducerConfig holds configuration for the Redpanda producer
type ProducerConfig struct {
	Brokers []string
	// Linger is how long to wait for a batch to fill
	Linger time.Duration
	// Compression is one of lz4, snappy, gzip, zstd or none
	Compression string
	// RecordRetries bounds client-side retries per record
	RecordRetries int
}

// DefaultProducerConfig returns defaults tuned for low event volume
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:       []string{"localhost:9092"},
		Linger:        5 * time.Millisecond,
		Compression:   "lz4",
		RecordRetries: 3,
	}
}

// Producer writes records synchronously
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	sent   atomic.Int64
	bytes  atomic.Int64
	errors atomic.Int64
}

// NewProducer creates a producer that waits for all in-sync replicas
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(cfg.Linger),
		kgo.RecordRetries(cfg.RecordRetries),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	switch cfg.Compression {
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}, nil
}

// Publish sends one record and waits for the acknowledgement
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.Produce(ctx, &kgo.Record{Topic: topic, Key: []byte(key), Value: value})
}

// Produce sends record and waits for the acknowledgement
func (p *Producer) Produce(ctx context.Context, record *kgo.Record) error {
	ctx, span := p.tracer.Start(ctx, "produce_message",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.String("key", string(record.Key)),
			attribute.Int("value_size", len(record.Value)),
		))
	defer span.End()

	injectTraceHeaders(ctx, record)

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.errors.Add(1)
		span.RecordError(err)
		p.logger.Error("failed to produce message",
			zap.String("topic", record.Topic),
			zap.String("key", string(record.Key)),
			zap.Error(err))
		return fmt.Errorf("produce to %s: %w", record.Topic, err)
	}

	p.sent.Add(1)
	p.bytes.Add(int64(len(record.Value)))
	p.logger.Debug("message produced",
		zap.String("topic", record.Topic),
		zap.Int32("partition", record.Partition),
		zap.Int64("offset", record.Offset))
	return nil
}

// Ping checks broker connectivity
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes and closes the producer
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
}

// ProducerStats holds producer statistics
type ProducerStats struct {
	MessagesSent int64 `json:"messagesSent"`
	BytesSent    int64 `json:"bytesSent"`
	ErrorCount   int64 `json:"errorCount"`
}

// Stats returns current producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent: p.sent.Load(),
		BytesSent:    p.bytes.Load(),
		ErrorCount:   p.errors.Load(),
	}
}

// RecordProducer is the part of Producer the event publisher needs
type RecordProducer interface {
	Produce(ctx context.Context, record *kgo.Record) error
}

// EventPublisher writes domain events to their topic, keyed by aggregate id
// so events for one prescription stay ordered.
type EventPublisher struct {
	producer RecordProducer
	breaker  *circuitbreaker.CircuitBreaker
}

// NewEventPublisher creates a publisher. breaker may be nil.
func NewEventPublisher(producer RecordProducer, breaker *circuitbreaker.CircuitBreaker) *EventPublisher {
	return &EventPublisher{producer: producer, breaker: breaker}
}

// Publish implements events.Publisher
func (p *EventPublisher) Publish(ctx context.Context, e *events.Event) error {
	record, err := eventRecord(e)
	if err != nil {
		return err
	}
	if p.breaker == nil {
		return p.producer.Produce(ctx, record)
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.producer.Produce(ctx, record)
	})
}

// Header keys set on every event record
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

func eventRecord(e *events.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return &kgo.Record{
		Topic: e.Type.Topic(),
		Key:   []byte(e.AggregateID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventID, Value: []byte(e.ID)},
			{Key: HeaderEventType, Value: []byte(e.Type)},
		},
	}, nil
}
