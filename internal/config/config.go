// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Notifications
	NotifyWebhookURL string // Delivery endpoint (optional, uses in-memory sink if not set)
	WebhookSecret    string // HMAC secret for signing webhook payloads

	// Risk engine
	ThresholdFailClosed bool          // Reject investments when validation stores are down
	ReassessInterval    time.Duration // Scheduler sweep interval

	// Reputation engine
	ReputationRefreshInterval time.Duration // Worker tick interval
	ReputationMaxAge          time.Duration // Recompute scores older than this
	ReputationBatchSize       int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Security
	AdminSecret string // Admin API secret
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultReassessInterval = time.Hour
	DefaultRefreshInterval  = 15 * time.Minute
	DefaultReputationMaxAge = 24 * time.Hour
	DefaultBatchSize        = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      getEnv("PORT", DefaultPort),
		Env:                       getEnv("ENV", DefaultEnv),
		LogLevel:                  getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:                 getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:               os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		NotifyWebhookURL:          os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookSecret:             os.Getenv("WEBHOOK_SECRET"),
		ThresholdFailClosed:       getEnvBool("THRESHOLD_FAIL_CLOSED", false),
		ReassessInterval:          getEnvDuration("REASSESS_INTERVAL", DefaultReassessInterval),
		ReputationRefreshInterval: getEnvDuration("REPUTATION_REFRESH_INTERVAL", DefaultRefreshInterval),
		ReputationMaxAge:          getEnvDuration("REPUTATION_MAX_AGE", DefaultReputationMaxAge),
		ReputationBatchSize:       int(getEnvInt64("REPUTATION_BATCH_SIZE", DefaultBatchSize)),
		OTLPEndpoint:              os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:               os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.ReassessInterval < time.Minute {
		return fmt.Errorf("REASSESS_INTERVAL must be at least 1m, got %s", c.ReassessInterval)
	}
	if c.ReputationRefreshInterval < time.Minute {
		return fmt.Errorf("REPUTATION_REFRESH_INTERVAL must be at least 1m, got %s", c.ReputationRefreshInterval)
	}
	if c.ReputationBatchSize <= 0 {
		return fmt.Errorf("REPUTATION_BATCH_SIZE must be positive, got %d", c.ReputationBatchSize)
	}
	if c.NotifyWebhookURL != "" && c.WebhookSecret == "" && c.IsProduction() {
		return fmt.Errorf("WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
