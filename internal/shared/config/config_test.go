package config

import (
	"os"
	"testing"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901") // 32 bytes
	t.Setenv("AGGREGATOR_CLIENT_ID", "test-client-id")
	t.Setenv("AGGREGATOR_SECRET", "test-secret")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Aggregator.ClientID != "test-client-id" {
		t.Errorf("Aggregator.ClientID = %q, want %q", cfg.Aggregator.ClientID, "test-client-id")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Sync.LookbackMonths != 24 {
		t.Errorf("Sync.LookbackMonths = %d, want %d", cfg.Sync.LookbackMonths, 24)
	}
	if cfg.Scheduler.WorkerCount != 4 {
		t.Errorf("Scheduler.WorkerCount = %d, want %d", cfg.Scheduler.WorkerCount, 4)
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ENCRYPTION_KEY", "")
	os.Unsetenv("ENCRYPTION_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing ENCRYPTION_KEY, got nil")
	}
}

func TestLoad_InvalidEncryptionKeyLength(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid ENCRYPTION_KEY length, got nil")
	}
}

func TestLoad_MissingAggregatorCredentials(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("AGGREGATOR_SECRET", "")
	os.Unsetenv("AGGREGATOR_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing AGGREGATOR_SECRET, got nil")
	}
}

func TestLoad_LookbackBounds(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SYNC_LOOKBACK_MONTHS", "36")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for out-of-range SYNC_LOOKBACK_MONTHS, got nil")
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "cartera",
		Password: "pw",
		DBName:   "cartera",
		SSLMode:  "require",
	}

	got := db.ConnectionString()
	want := "host=db.internal port=5433 user=cartera password=pw dbname=cartera sslmode=require"
	if got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
