// Package config loads process configuration from the environment (and an
// optional .env file) for every rxportal binary.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds application configuration
type Config struct {
	Port         string   `mapstructure:"PORT"`
	LogLevel     string   `mapstructure:"LOG_LEVEL"`
	ActingUserID string   `mapstructure:"ACTING_USER_ID"`
	APIKeys      []string `mapstructure:"API_KEYS"`
	SeedDemoData bool     `mapstructure:"SEED_DEMO_DATA"`
	Workers      int      `mapstructure:"WORKERS"`

	QueueTickInterval  time.Duration `mapstructure:"QUEUE_TICK_INTERVAL"`
	QueueStartPosition int           `mapstructure:"QUEUE_START_POSITION"`
	QueueTotal         int           `mapstructure:"QUEUE_TOTAL"`
	QueueWaitMinutes   int           `mapstructure:"QUEUE_WAIT_MINUTES"`
	LifecycleMinDelay  time.Duration `mapstructure:"LIFECYCLE_MIN_DELAY"`
	LifecycleMaxDelay  time.Duration `mapstructure:"LIFECYCLE_MAX_DELAY"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	ConsumerGroup     string        `mapstructure:"CONSUMER_GROUP"`
	RelayPollInterval time.Duration `mapstructure:"RELAY_POLL_INTERVAL"`

	TracingEnabled bool   `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint   string `mapstructure:"OTLP_ENDPOINT"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	AlertEmailFrom string `mapstructure:"ALERT_EMAIL_FROM"`
	AlertEmailTo   string `mapstructure:"ALERT_EMAIL_TO"`
	AlertSMSTo     string `mapstructure:"ALERT_SMS_TO"`
}

var keys = []string{
	"PORT", "LOG_LEVEL", "ACTING_USER_ID", "API_KEYS", "SEED_DEMO_DATA", "WORKERS",
	"QUEUE_TICK_INTERVAL", "QUEUE_START_POSITION", "QUEUE_TOTAL", "QUEUE_WAIT_MINUTES",
	"LIFECYCLE_MIN_DELAY", "LIFECYCLE_MAX_DELAY",
	"DATABASE_URL", "KAFKA_BROKERS", "CONSUMER_GROUP", "RELAY_POLL_INTERVAL",
	"TRACING_ENABLED", "OTLP_ENDPOINT",
	"SENDGRID_API_KEY", "ALERT_EMAIL_FROM", "ALERT_EMAIL_TO", "ALERT_SMS_TO",
}

// Load reads the configuration and validates it
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ACTING_USER_ID", "user-1")
	v.SetDefault("SEED_DEMO_DATA", true)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("QUEUE_TICK_INTERVAL", "10s")
	v.SetDefault("QUEUE_START_POSITION", 3)
	v.SetDefault("QUEUE_TOTAL", 8)
	v.SetDefault("QUEUE_WAIT_MINUTES", 15)
	v.SetDefault("LIFECYCLE_MIN_DELAY", "5s")
	v.SetDefault("LIFECYCLE_MAX_DELAY", "15s")
	v.SetDefault("CONSUMER_GROUP", "rxportal-notification-relay")
	v.SetDefault("RELAY_POLL_INTERVAL", "1s")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("ALERT_EMAIL_FROM", "alerts@rxportal.dev")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIKeys = splitList(cfg.APIKeys)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList normalizes comma separated values that arrive as one element
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks ranges and cross-field constraints
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	if c.ActingUserID == "" {
		return fmt.Errorf("ACTING_USER_ID is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.QueueTickInterval <= 0 {
		return fmt.Errorf("QUEUE_TICK_INTERVAL must be positive")
	}
	if c.QueueStartPosition < 0 || c.QueueWaitMinutes < 0 {
		return fmt.Errorf("QUEUE_START_POSITION and QUEUE_WAIT_MINUTES must not be negative")
	}
	if c.QueueTotal < c.QueueStartPosition {
		return fmt.Errorf("QUEUE_TOTAL (%d) must be at least QUEUE_START_POSITION (%d)", c.QueueTotal, c.QueueStartPosition)
	}
	if c.LifecycleMinDelay <= 0 {
		return fmt.Errorf("LIFECYCLE_MIN_DELAY must be positive")
	}
	if c.LifecycleMaxDelay < c.LifecycleMinDelay {
		return fmt.Errorf("LIFECYCLE_MAX_DELAY must not be shorter than LIFECYCLE_MIN_DELAY")
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when TRACING_ENABLED is true")
	}
	return nil
}

// StreamingEnabled reports whether events go straight to the broker
func (c *Config) StreamingEnabled() bool { return len(c.KafkaBrokers) > 0 }

// OutboxEnabled reports whether events are written to the Postgres outbox
func (c *Config) OutboxEnabled() bool { return c.DatabaseURL != "" }

// EmailEnabled reports whether SendGrid delivery is configured
func (c *Config) EmailEnabled() bool { return c.SendGridAPIKey != "" && c.AlertEmailTo != "" }

// NewLogger builds the production zap logger at the configured level
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
