package delivery

import (
	"context"

	"go.uber.org/zap"
)

// LogSMSSender writes SMS messages to the log. It stands in for a gateway in
// development and demo deployments.
type LogSMSSender struct {
	logger *zap.Logger
}

// NewLogSMSSender creates the sender
func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSMSSender{logger: logger}
}

// Send implements Sender
func (s *LogSMSSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("sms dispatched",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", msg.To),
		zap.Bool("urgent", msg.Urgent),
		zap.String("text", msg.Title+": "+msg.Body))
	return nil
}
