package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"text/template"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/drfirst/go-rxportal/pkg/idempotency"
)

// Channel names a delivery channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is what a Sender delivers
type Message struct {
	NotificationID string
	To             string
	Title          string
	Body           string
	Urgent         bool
}

// Sender delivers a message on one channel
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailClient is the SendGrid call the email sender makes
type MailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailConfig holds email sender configuration
type EmailConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
}

// DefaultEmailConfig returns the portal's sender identity
func DefaultEmailConfig() EmailConfig {
	return EmailConfig{
		FromName:  "Pharmacy Portal",
		FromEmail: "alerts@rxportal.dev",
	}
}

const emailPlain = `{{if .Urgent}}[Urgent] {{end}}{{.Title}}

{{.Body}}

Manage notification preferences in the portal under Settings > Notifications.
`

var emailPlainTemplate = template.Must(template.New("email").Parse(emailPlain))

// EmailSender sends notifications through SendGrid
type EmailSender struct {
	client MailClient
	config EmailConfig
	logger *zap.Logger
}

// NewEmailSender creates a sender. client may be nil, in which case a
// SendGrid client is built from the API key.
func NewEmailSender(client MailClient, cfg EmailConfig, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return &EmailSender{client: client, config: cfg, logger: logger}
}

// Send implements Sender
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return idempotency.Permanent(fmt.Errorf("email recipient is required"))
	}

	message := mail.NewV3Mail()
	message.From = mail.NewEmail(s.config.FromName, s.config.FromEmail)
	message.Subject = msg.Title
	if msg.Urgent {
		message.Subject = "[Urgent] " + msg.Title
	}

	personalization := mail.NewPersonalization()
	personalization.To = append(personalization.To, mail.NewEmail("", msg.To))
	message.Personalizations = append(message.Personalizations, personalization)

	text := &bytes.Buffer{}
	if err := emailPlainTemplate.Execute(text, msg); err != nil {
		return fmt.Errorf("while templating plain-text email content: %w", err)
	}
	message.Content = append(message.Content, mail.NewContent("text/plain", text.String()))

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("while sending mail through SendGrid: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("non-2XX response while sending mail through SendGrid: %d %s", resp.StatusCode, resp.Body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return idempotency.Permanent(err)
		}
		return err
	}

	s.logger.Debug("email sent",
		zap.String("notification_id", msg.NotificationID),
		zap.Int("status", resp.StatusCode))
	return nil
}
