package redpanda

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/events"
)

// ConsumerConfig holds configuration for the Redpanda consumer
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// SessionTimeout is the group session timeout
	SessionTimeout time.Duration
	// StartOffset is "earliest" or "latest" for groups without a commit
	StartOffset string
}

// DefaultConsumerConfig returns defaults for the notification relay
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "rxportal-notification-relay",
		SessionTimeout: 30 * time.Second,
		StartOffset:    "earliest",
	}
}

// MessageHandler is called for each consumed message
type MessageHandler func(ctx context.Context, msg *Message) error

// DeadLetterFunc receives messages whose handler failed
type DeadLetterFunc func(ctx context.Context, msg *Message, cause error) error

// Message is a consumed record
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Consumer reads from a consumer group and commits after each handled record
type Consumer struct {
	client     *kgo.Client
	logger     *zap.Logger
	tracer     trace.Tracer
	handler    MessageHandler
	deadLetter DeadLetterFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	read   atomic.Int64
	failed atomic.Int64
}

// NewConsumer creates a new Redpanda consumer. deadLetter may be nil, in
// which case failed records are logged and skipped.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, deadLetter DeadLetterFunc, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("message handler is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info("partitions assigned", zap.Any("partitions", assigned))
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
			logger.Info("partitions revoked", zap.Any("partitions", revoked))
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Warn("commit on revoke failed", zap.Error(err))
			}
		}),
	}
	if cfg.StartOffset == "latest" {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:     client,
		logger:     logger,
		tracer:     otel.Tracer("redpanda-consumer"),
		handler:    handler,
		deadLetter: deadLetter,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins consuming messages
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop waits for the in-flight record, commits and closes the client
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn("error committing offsets on stop", zap.Error(err))
	}
	c.client.Close()
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for {
		fetches := c.client.PollFetches(c.ctx)
		if fetches.IsClientClosed() || c.ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})

		fetches.EachRecord(func(record *kgo.Record) {
			c.process(record)
			c.client.MarkCommitRecords(record)
		})

		if err := c.client.CommitMarkedOffsets(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Error("failed to commit offsets", zap.Error(err))
		}
	}
}

func (c *Consumer) process(record *kgo.Record) {
	ctx := extractTraceContext(c.ctx, record)
	ctx, span := c.tracer.Start(ctx, "process_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("partition", int64(record.Partition)),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	msg := toMessage(record)
	c.read.Add(1)

	err := c.handler(ctx, msg)
	if err == nil {
		return
	}

	c.failed.Add(1)
	span.RecordError(err)
	c.logger.Error("message handler failed",
		zap.String("topic", record.Topic),
		zap.Int32("partition", record.Partition),
		zap.Int64("offset", record.Offset),
		zap.Error(err))

	if c.deadLetter != nil {
		if dlErr := c.deadLetter(ctx, msg, err); dlErr != nil {
			c.logger.Error("dead letter failed", zap.Error(dlErr))
		}
	}
}

func toMessage(record *kgo.Record) *Message {
	msg := &Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
		Timestamp: record.Timestamp,
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// ConsumerStats holds consumer statistics
type ConsumerStats struct {
	MessagesRead int64 `json:"messagesRead"`
	Failed       int64 `json:"failed"`
}

// Stats returns current consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesRead: c.read.Load(),
		Failed:       c.failed.Load(),
	}
}

// Header keys added to dead-lettered records
const (
	HeaderSourceTopic  = "source-topic"
	HeaderSourceOffset = "source-offset"
	HeaderError        = "error"
)

// DeadLetterTo returns a DeadLetterFunc that copies the failed record,
// annotated with its origin and cause, to the dead letter topic
func DeadLetterTo(producer RecordProducer) DeadLetterFunc {
	return func(ctx context.Context, msg *Message, cause error) error {
		headers := make([]kgo.RecordHeader, 0, len(msg.Headers)+3)
		for k, v := range msg.Headers {
			headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
		headers = append(headers,
			kgo.RecordHeader{Key: HeaderSourceTopic, Value: []byte(msg.Topic)},
			kgo.RecordHeader{Key: HeaderSourceOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kgo.RecordHeader{Key: HeaderError, Value: []byte(cause.Error())},
		)
		return producer.Produce(ctx, &kgo.Record{
			Topic:   events.TopicDeadLetter,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: headers,
		})
	}
}
