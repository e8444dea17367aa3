package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tradenotify")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.DBConfig.Driver)
	assert.Equal(t, 5*time.Second, cfg.WorkerCfg.Interval)
	assert.Equal(t, 50, cfg.WorkerCfg.BatchSize)
	assert.Equal(t, 5, cfg.WorkerCfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.WorkerCfg.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.WorkerCfg.BackoffMax)
	assert.True(t, cfg.JobsCfg.CreditExpiryEnabled)
	assert.True(t, cfg.JobsCfg.ScoreRecoveryEnabled)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "log", cfg.EmailCfg.Driver)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tradenotify")
	t.Setenv("ENABLE_CREDIT_EXPIRY_JOB", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WORKER_BATCH_SIZE", "10")
	t.Setenv("APP_BASE_URL", "https://trades.example/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.JobsCfg.CreditExpiryEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaCfg.Brokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 10, cfg.WorkerCfg.BatchSize)
	assert.Equal(t, "https://trades.example", cfg.AppCfg.BaseURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{}},
		{name: "bad duration", env: map[string]string{"DATABASE_URL": "x", "WORKER_INTERVAL": "soon"}},
		{name: "lease shorter than timeout", env: map[string]string{"DATABASE_URL": "x", "DELIVERY_LEASE": "5s"}},
		{name: "ses without sender", env: map[string]string{"DATABASE_URL": "x", "EMAIL_DRIVER": "ses"}},
		{name: "jitter out of range", env: map[string]string{"DATABASE_URL": "x", "BACKOFF_JITTER": "1.5"}},
		{name: "zero worker interval", env: map[string]string{"DATABASE_URL": "x", "WORKER_INTERVAL": "0s"}},
		{name: "zero delivery timeout", env: map[string]string{"DATABASE_URL": "x", "DELIVERY_TIMEOUT": "0s"}},
		{name: "negative stats interval", env: map[string]string{"DATABASE_URL": "x", "QUEUE_STATS_INTERVAL": "-1s"}},
		{name: "zero credit expiry interval", env: map[string]string{"DATABASE_URL": "x", "CREDIT_EXPIRY_INTERVAL": "0s"}},
		{name: "zero score recovery interval", env: map[string]string{"DATABASE_URL": "x", "SCORE_RECOVERY_INTERVAL": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
