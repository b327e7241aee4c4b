package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/internal/domain/notification"
	"github.com/drfirst/go-rxportal/internal/events"
	"github.com/drfirst/go-rxportal/pkg/circuitbreaker"
	"github.com/drfirst/go-rxportal/pkg/idempotency"
	"github.com/drfirst/go-rxportal/pkg/workerpool"
)

// Recipient holds the acting user's contact points
type Recipient struct {
	Email string
	Phone string
}

// Delivery results reported to OnResult
const (
	ResultSent      = "sent"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// DispatcherConfig wires the dispatcher's collaborators
type DispatcherConfig struct {
	Senders   map[Channel]Sender
	Recipient Recipient
	Breakers  *circuitbreaker.Manager
	Inbox     *idempotency.Inbox
	// Pool runs deliveries in the background; nil delivers inline
	Pool *workerpool.Pool
	// OnResult is called once per attempted channel delivery
	OnResult func(ch Channel, result string)
}

// Dispatcher fans a notification out to the external channels the
// patient's preferences allow
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Inbox == nil {
		return nil, errors.New("dispatcher requires an idempotency inbox")
	}
	if cfg.Breakers == nil {
		cfg.Breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig(""), logger)
	}
	return &Dispatcher{cfg: cfg, logger: logger}, nil
}

// Channels returns the channels a notification should go to
func Channels(prefs notification.Preferences, urgent bool) []Channel {
	var out []Channel
	if prefs.Allows(prefs.Email, urgent) {
		out = append(out, ChannelEmail)
	}
	if prefs.Allows(prefs.SMS, urgent) {
		out = append(out, ChannelSMS)
	}
	return out
}

// HandleEvent delivers notification.created events and ignores the rest
func (d *Dispatcher) HandleEvent(ctx context.Context, e *events.Event) error {
	if e.Type != events.NotificationCreated {
		return nil
	}
	var data events.NotificationCreatedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	return d.Dispatch(ctx, e.ID, data.Notification, data.Preferences)
}

// Listen adapts the dispatcher to a notification store listener. The
// notification id stands in for the event id.
func (d *Dispatcher) Listen(ctx context.Context, n notification.Notification, prefs notification.Preferences) {
	if err := d.Dispatch(context.WithoutCancel(ctx), n.ID, n, prefs); err != nil {
		d.logger.Warn("notification dispatch failed",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}

// Dispatch delivers n on every allowed channel. Each (key, channel) pair is
// delivered at most once.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, n notification.Notification, prefs notification.Preferences) error {
	var errs []error
	for _, ch := range Channels(prefs, n.Urgent) {
		sender, ok := d.cfg.Senders[ch]
		if !ok {
			continue
		}
		msg := Message{
			NotificationID: n.ID,
			To:             d.recipientFor(ch),
			Title:          n.Title,
			Body:           n.Message,
			Urgent:         n.Urgent,
		}

		run := func(ctx context.Context) error { return d.deliver(ctx, key, ch, sender, msg) }

		if d.cfg.Pool == nil {
			if err := run(ctx); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := d.cfg.Pool.Submit(workerpool.Job{
			Name:    "deliver:" + string(ch),
			Context: context.WithoutCancel(ctx),
			Run:     run,
		}); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s delivery: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) recipientFor(ch Channel) string {
	if ch == ChannelSMS {
		return d.cfg.Recipient.Phone
	}
	return d.cfg.Recipient.Email
}

func (d *Dispatcher) deliver(ctx context.Context, key string, ch Channel, sender Sender, msg Message) error {
	breaker, err := d.cfg.Breakers.Get(string(ch))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", ch, err)
	}

	res, err := d.cfg.Inbox.Process(ctx, idempotency.Key(key, string(ch)), "deliver:"+string(ch), payload,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return nil, breaker.Execute(ctx, func(ctx context.Context) error {
				return sender.Send(ctx, msg)
			})
		})

	switch {
	case err == nil && res.Duplicate:
		d.report(ch, ResultDuplicate)
		return nil
	case err == nil:
		d.report(ch, ResultSent)
		return nil
	case idempotency.IsPermanent(err):
		// Recorded as failed in the inbox; retrying cannot help.
		d.report(ch, ResultRejected)
		d.logger.Warn("delivery rejected",
			zap.String("channel", string(ch)),
			zap.String("notification_id", msg.NotificationID),
			zap.Error(err))
		return nil
	default:
		d.report(ch, ResultFailed)
		return fmt.Errorf("%s delivery: %w", ch, err)
	}
}

func (d *Dispatcher) report(ch Channel, result string) {
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(ch, result)
	}
}
