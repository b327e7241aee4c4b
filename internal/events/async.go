package events

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/pkg/workerpool"
)

// AsyncPublisher hands events to a worker pool so callers never wait on the
// downstream. Publish only fails when the pool rejects the job.
type AsyncPublisher struct {
	next   Publisher
	pool   *workerpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewAsyncPublisher wraps next with pool
func NewAsyncPublisher(next Publisher, pool *workerpool.Pool, logger *zap.Logger) *AsyncPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncPublisher{
		next:   next,
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("event-publisher"),
	}
}

// Publish enqueues the event
func (a *AsyncPublisher) Publish(ctx context.Context, e *Event) error {
	link := trace.LinkFromContext(ctx)
	err := a.pool.Submit(workerpool.Job{
		Name: "publish:" + string(e.Type),
		Run: func(jobCtx context.Context) error {
			jobCtx, span := a.tracer.Start(jobCtx, "publish_event",
				trace.WithLinks(link),
				trace.WithAttributes(
					attribute.String("event.id", e.ID),
					attribute.String("event.type", string(e.Type)),
				))
			defer span.End()

			if err := a.next.Publish(jobCtx, e); err != nil {
				span.RecordError(err)
				return err
			}
			return nil
		},
	})
	if err != nil {
		a.logger.Warn("event dropped",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
		return fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	return nil
}
