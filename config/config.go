package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Extractor service configuration
	Extractor ExtractorConfig

	// Worker pool configuration
	Worker WorkerConfig

	// Job configuration
	Jobs JobsConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               string
	ReadTimeoutSec     int
	WriteTimeoutSec    int
	CORSAllowedOrigins []string
	// ExemptPrefixes are path prefixes that bypass rate limiting and
	// identity resolution (health checks, metrics)
	ExemptPrefixes []string
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	WindowMinutes  int
	ReadOnlyRPM    int
	DownloadRPM    int
	AdminRPM       int
	FullAccessRPM  int
	AnonymousRPM   int
	CleanupMinutes int
}

// ExtractorConfig holds external extractor service configuration
type ExtractorConfig struct {
	BaseURL    string
	TimeoutSec int
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize        int
	PollIntervalSec int
}

// JobsConfig holds job lifecycle configuration
type JobsConfig struct {
	DefaultMaxRetries int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		HTTP: HTTPConfig{
			Port:               getEnvString("HTTP_PORT", "8080"),
			ReadTimeoutSec:     getEnvInt("HTTP_READ_TIMEOUT_SEC", 30),
			WriteTimeoutSec:    getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: splitCommaList(getEnvString("CORS_ALLOWED_ORIGINS", "*")),
			ExemptPrefixes:     splitCommaList(getEnvString("GATEWAY_EXEMPT_PREFIXES", "/api/health,/metrics")),
		},
		RateLimit: RateLimitConfig{
			WindowMinutes:  getEnvInt("RATELIMIT_WINDOW_MINUTES", 1),
			ReadOnlyRPM:    getEnvInt("RATELIMIT_READ_ONLY_RPM", 60),
			DownloadRPM:    getEnvInt("RATELIMIT_DOWNLOAD_RPM", 30),
			AdminRPM:       getEnvInt("RATELIMIT_ADMIN_RPM", 120),
			FullAccessRPM:  getEnvInt("RATELIMIT_FULL_ACCESS_RPM", 240),
			AnonymousRPM:   getEnvInt("RATELIMIT_ANONYMOUS_RPM", 10),
			CleanupMinutes: getEnvInt("RATELIMIT_CLEANUP_MINUTES", 5),
		},
		Extractor: ExtractorConfig{
			BaseURL:    getEnvString("EXTRACTOR_BASE_URL", "http://localhost:9191"),
			TimeoutSec: getEnvInt("EXTRACTOR_TIMEOUT_SEC", 600),
		},
		Worker: WorkerConfig{
			PoolSize:        getEnvInt("WORKER_POOL_SIZE", 3),
			PollIntervalSec: getEnvInt("WORKER_POLL_INTERVAL_SEC", 2),
		},
		Jobs: JobsConfig{
			DefaultMaxRetries: getEnvInt("JOB_DEFAULT_MAX_RETRIES", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RateLimit.WindowMinutes <= 0 {
		return fmt.Errorf("RATELIMIT_WINDOW_MINUTES must be positive, got %d", c.RateLimit.WindowMinutes)
	}
	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be positive, got %d", c.Worker.PoolSize)
	}
	if c.Worker.PollIntervalSec <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL_SEC must be positive, got %d", c.Worker.PollIntervalSec)
	}
	if c.Jobs.DefaultMaxRetries < 0 {
		return fmt.Errorf("JOB_DEFAULT_MAX_RETRIES must not be negative, got %d", c.Jobs.DefaultMaxRetries)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// ExtractTimeout returns the per-job extraction timeout
func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSec) * time.Second
}

// PollInterval returns the worker queue poll interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollIntervalSec) * time.Second
}

func splitCommaList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: ""},
		HTTP: HTTPConfig{
			Port:               "8080",
			ReadTimeoutSec:     5,
			WriteTimeoutSec:    5,
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			ExemptPrefixes:     []string{"/api/health", "/metrics"},
		},
		RateLimit: RateLimitConfig{
			WindowMinutes:  1,
			ReadOnlyRPM:    60,
			DownloadRPM:    30,
			AdminRPM:       120,
			FullAccessRPM:  240,
			AnonymousRPM:   10,
			CleanupMinutes: 5,
		},
		Extractor: ExtractorConfig{
			BaseURL:    "http://localhost:9191",
			TimeoutSec: 30,
		},
		Worker: WorkerConfig{
			PoolSize:        2,
			PollIntervalSec: 1,
		},
		Jobs: JobsConfig{
			DefaultMaxRetries: 3,
		},
	}
}
