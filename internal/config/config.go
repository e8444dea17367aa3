package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds the database connection settings
type DBConfig struct {
	Driver      string
	URL         string
	MaxOpenConn int
	ConnMaxIdle time.Duration
}

// AppConfig holds process level settings
type AppConfig struct {
	Port          string
	LogLevel      string
	BaseURL       string
	ShutdownGrace time.Duration
}

// WorkerConfig controls the delivery worker and its retry policy
type WorkerConfig struct {
	ID             string
	Interval       time.Duration
	BatchSize      int
	Concurrency    int
	AttemptTimeout time.Duration
	Lease          time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	BackoffJitter  float64
	StatsInterval  time.Duration
}

// JobsConfig toggles the periodic finance jobs
type JobsConfig struct {
	CreditExpiryEnabled   bool
	CreditExpiryInterval  time.Duration
	ScoreRecoveryEnabled  bool
	ScoreRecoveryInterval time.Duration
}

// KafkaConfig is optional; an empty broker list disables Kafka entirely
type KafkaConfig struct {
	Brokers       []string
	PushTopic     string
	IngestTopic   string
	ConsumerGroup string
}

// EmailConfig selects the email channel implementation
type EmailConfig struct {
	Driver string
	From   string
}

type Config struct {
	AppCfg    AppConfig
	DBConfig  DBConfig
	WorkerCfg WorkerConfig
	JobsCfg   JobsConfig
	KafkaCfg  KafkaConfig
	EmailCfg  EmailConfig
}

// LoadConfig loads configuration from the environment, reading a .env file first when one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	hostname, _ := os.Hostname()
	p := &parser{}

	cfg := &Config{
		AppCfg: AppConfig{
			Port:          getEnv("HTTP_PORT", "8080"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			BaseURL:       strings.TrimRight(getEnv("APP_BASE_URL", ""), "/"),
			ShutdownGrace: p.duration("SHUTDOWN_GRACE", 15*time.Second),
		},
		DBConfig: DBConfig{
			Driver:      getEnv("DB_DRIVER", "pgx"),
			URL:         os.Getenv("DATABASE_URL"),
			MaxOpenConn: p.int("DB_MAX_OPEN_CONNS", 10),
			ConnMaxIdle: p.duration("DB_CONN_MAX_IDLE", 5*time.Minute),
		},
		WorkerCfg: WorkerConfig{
			ID:             getEnv("WORKER_ID", hostname),
			Interval:       p.duration("WORKER_INTERVAL", 5*time.Second),
			BatchSize:      p.int("WORKER_BATCH_SIZE", 50),
			Concurrency:    p.int("WORKER_CONCURRENCY", 8),
			AttemptTimeout: p.duration("DELIVERY_TIMEOUT", 10*time.Second),
			Lease:          p.duration("DELIVERY_LEASE", time.Minute),
			MaxAttempts:    p.int("NOTIFICATION_MAX_ATTEMPTS", 5),
			BackoffBase:    p.duration("BACKOFF_BASE", 2*time.Second),
			BackoffMax:     p.duration("BACKOFF_MAX", 5*time.Minute),
			BackoffJitter:  p.float("BACKOFF_JITTER", 0.2),
			StatsInterval:  p.duration("QUEUE_STATS_INTERVAL", 30*time.Second),
		},
		JobsCfg: JobsConfig{
			CreditExpiryEnabled:   p.bool("ENABLE_CREDIT_EXPIRY_JOB", true),
			CreditExpiryInterval:  p.duration("CREDIT_EXPIRY_INTERVAL", 24*time.Hour),
			ScoreRecoveryEnabled:  p.bool("ENABLE_SCORE_RECOVERY_JOB", true),
			ScoreRecoveryInterval: p.duration("SCORE_RECOVERY_INTERVAL", 24*time.Hour),
		},
		KafkaCfg: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			PushTopic:     getEnv("KAFKA_PUSH_TOPIC", "notifications.inapp"),
			IngestTopic:   getEnv("KAFKA_INGEST_TOPIC", "domain.events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "tradenotify"),
		},
		EmailCfg: EmailConfig{
			Driver: getEnv("EMAIL_DRIVER", "log"),
			From:   os.Getenv("EMAIL_FROM"),
		},
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error
	if c.DBConfig.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	w := c.WorkerCfg
	if w.BatchSize <= 0 || w.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_BATCH_SIZE and WORKER_CONCURRENCY must be positive"))
	}
	if w.MaxAttempts <= 0 {
		errs = append(errs, errors.New("NOTIFICATION_MAX_ATTEMPTS must be positive"))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"WORKER_INTERVAL", w.Interval},
		{"QUEUE_STATS_INTERVAL", w.StatsInterval},
		{"DELIVERY_TIMEOUT", w.AttemptTimeout},
		{"CREDIT_EXPIRY_INTERVAL", c.JobsCfg.CreditExpiryInterval},
		{"SCORE_RECOVERY_INTERVAL", c.JobsCfg.ScoreRecoveryInterval},
		{"SHUTDOWN_GRACE", c.AppCfg.ShutdownGrace},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}
	if w.Lease <= w.AttemptTimeout {
		errs = append(errs, fmt.Errorf("DELIVERY_LEASE (%s) must exceed DELIVERY_TIMEOUT (%s)", w.Lease, w.AttemptTimeout))
	}
	if w.BackoffBase <= 0 || w.BackoffMax < w.BackoffBase {
		errs = append(errs, errors.New("BACKOFF_MAX must be >= BACKOFF_BASE > 0"))
	}
	if w.BackoffJitter < 0 || w.BackoffJitter > 1 {
		errs = append(errs, errors.New("BACKOFF_JITTER must be within [0, 1]"))
	}
	switch c.EmailCfg.Driver {
	case "log":
	case "ses":
		if c.EmailCfg.From == "" {
			errs = append(errs, errors.New("EMAIL_FROM is required for the ses driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_DRIVER %q", c.EmailCfg.Driver))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether any Kafka brokers are configured
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaCfg.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
