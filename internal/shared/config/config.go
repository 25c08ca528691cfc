package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database   DatabaseConfig
	Encryption EncryptionConfig
	Aggregator AggregatorConfig
	Sync       SyncConfig
	Scheduler  SchedulerConfig
	Telemetry  TelemetryConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type EncryptionConfig struct {
	Key string
}

type AggregatorConfig struct {
	BaseURL  string
	ClientID string
	Secret   string
}

type SyncConfig struct {
	// LookbackMonths bounds how far back the historical transaction fetch
	// reaches for institutions without a restricted-history cap.
	LookbackMonths  int
	InterChunkDelay time.Duration
	LeaseTTL        time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	lookbackMonths, err := strconv.Atoi(getEnv("SYNC_LOOKBACK_MONTHS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_LOOKBACK_MONTHS: %w", err)
	}
	interChunkDelay, err := time.ParseDuration(getEnv("SYNC_INTER_CHUNK_DELAY", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTER_CHUNK_DELAY: %w", err)
	}
	leaseTTL, err := time.ParseDuration(getEnv("SYNC_LEASE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_LEASE_TTL: %w", err)
	}

	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "06:00,12:00,18:00"), ",")
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "cartera"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "cartera"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Aggregator: AggregatorConfig{
			BaseURL:  getEnv("AGGREGATOR_BASE_URL", "https://sandbox.aggregator.example.com"),
			ClientID: getEnv("AGGREGATOR_CLIENT_ID", ""),
			Secret:   getEnv("AGGREGATOR_SECRET", ""),
		},
		Sync: SyncConfig{
			LookbackMonths:  lookbackMonths,
			InterChunkDelay: interChunkDelay,
			LeaseTTL:        leaseTTL,
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "cartera-syncd"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes")
	}
	if cfg.Aggregator.ClientID == "" {
		return nil, fmt.Errorf("AGGREGATOR_CLIENT_ID is required")
	}
	if cfg.Aggregator.Secret == "" {
		return nil, fmt.Errorf("AGGREGATOR_SECRET is required")
	}
	if cfg.Sync.LookbackMonths < 1 || cfg.Sync.LookbackMonths > 24 {
		return nil, fmt.Errorf("SYNC_LOOKBACK_MONTHS must be between 1 and 24")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
