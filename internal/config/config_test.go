package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "user-1", cfg.ActingUserID)
	assert.True(t, cfg.SeedDemoData)
	assert.Equal(t, 10*time.Second, cfg.QueueTickInterval)
	assert.Equal(t, 3, cfg.QueueStartPosition)
	assert.Equal(t, 8, cfg.QueueTotal)
	assert.Equal(t, 15, cfg.QueueWaitMinutes)
	assert.Equal(t, 5*time.Second, cfg.LifecycleMinDelay)
	assert.Equal(t, 15*time.Second, cfg.LifecycleMaxDelay)
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.StreamingEnabled())
	assert.False(t, cfg.OutboxEnabled())
	assert.False(t, cfg.EmailEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEYS", "alpha, beta")
	t.Setenv("KAFKA_BROKERS", "redpanda-0:9092,redpanda-1:9092")
	t.Setenv("QUEUE_TICK_INTERVAL", "250ms")
	t.Setenv("SEED_DEMO_DATA", "false")
	t.Setenv("SENDGRID_API_KEY", "SG.test")
	t.Setenv("ALERT_EMAIL_TO", "pat@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.APIKeys)
	assert.Equal(t, []string{"redpanda-0:9092", "redpanda-1:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.QueueTickInterval)
	assert.False(t, cfg.SeedDemoData)
	assert.True(t, cfg.StreamingEnabled())
	assert.True(t, cfg.EmailEnabled())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("LIFECYCLE_MIN_DELAY", "20s")
	t.Setenv("LIFECYCLE_MAX_DELAY", "5s")

	_, err := Load()
	assert.ErrorContains(t, err, "LIFECYCLE_MAX_DELAY")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              "8080",
			LogLevel:          "info",
			ActingUserID:      "user-1",
			Workers:           1,
			QueueTickInterval: time.Second,
			QueueTotal:        8,
			LifecycleMinDelay: time.Second,
			LifecycleMaxDelay: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }},
		{"no user", func(c *Config) { c.ActingUserID = "" }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"position past total", func(c *Config) { c.QueueStartPosition = 9 }},
		{"negative wait", func(c *Config) { c.QueueWaitMinutes = -1 }},
		{"zero tick", func(c *Config) { c.QueueTickInterval = 0 }},
		{"tracing without endpoint", func(c *Config) { c.TracingEnabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	c := &Config{LogLevel: "debug"}
	logger, err := c.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))
}
