// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Upstream UpstreamConfig
	Storage  StorageConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default because the trigger endpoint answers only
	// after a whole pass.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for query and create requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxUploadSize caps import files in bytes (default: 20MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"20971520"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// PipelineConfig holds job processing settings.
type PipelineConfig struct {
	// BatchSize is the number of concurrent upstream calls per chunk (default: 10)
	BatchSize int `env:"PIPELINE_BATCH_SIZE" default:"10"`

	// RequestsPerSecond is the upstream request budget (default: 5)
	RequestsPerSecond float64 `env:"PIPELINE_REQUESTS_PER_SECOND" default:"5"`

	// MaxRetries is how often a throttled request is retried (default: 3)
	MaxRetries int `env:"PIPELINE_MAX_RETRIES" default:"3"`

	// FailFast returns throttling errors without retrying (default: false)
	FailFast bool `env:"PIPELINE_FAIL_FAST" default:"false"`

	// FailOnRecordErrors fails an import when any record fails (default: false)
	FailOnRecordErrors bool `env:"PIPELINE_FAIL_ON_RECORD_ERRORS" default:"false"`

	// JobTimeout bounds one claimed job (default: 30m)
	JobTimeout time.Duration `env:"PIPELINE_JOB_TIMEOUT" default:"30m"`

	// PollInterval is how often the background poller runs; 0 disables it (default: 1m)
	PollInterval time.Duration `env:"PIPELINE_POLL_INTERVAL" default:"1m"`

	// RunWait is how long a pass waits for a running pass to finish (default: 0s)
	RunWait time.Duration `env:"PIPELINE_RUN_WAIT" default:"0s"`

	// DefaultLocale is the fallback reference locale (default: en)
	DefaultLocale string `env:"PIPELINE_DEFAULT_LOCALE" default:"en"`
}

// UpstreamConfig holds catalog API settings.
type UpstreamConfig struct {
	// BaseURL is the API root; store paths are appended (default: https://api.bigcommerce.com)
	BaseURL string `env:"UPSTREAM_BASE_URL" default:"https://api.bigcommerce.com"`

	// Timeout is the per-request HTTP timeout (default: 30s)
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" default:"30s"`

	// SeedStoreHash and SeedAccessToken register one store's credentials at
	// startup, for single-store installs.
	SeedStoreHash   string `env:"UPSTREAM_STORE_HASH"`
	SeedAccessToken string `env:"UPSTREAM_ACCESS_TOKEN"`
}

// StorageConfig holds blob storage settings.
type StorageConfig struct {
	// Driver is filesystem or s3 (default: filesystem)
	Driver string `env:"STORAGE_DRIVER" default:"filesystem"`

	// Dir is the filesystem root (default: ./data/files)
	Dir string `env:"STORAGE_DIR" default:"./data/files"`

	// PublicBaseURL prefixes returned file URLs
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/files"`

	Bucket    string `env:"STORAGE_S3_BUCKET"`
	Region    string `env:"STORAGE_S3_REGION" envAlt:"AWS_REGION"`
	Endpoint  string `env:"STORAGE_S3_ENDPOINT"`
	AccessKey string `env:"STORAGE_S3_ACCESS_KEY" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretKey string `env:"STORAGE_S3_SECRET_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`

	// UsePathStyle is needed by most S3-compatible servers (default: false)
	UsePathStyle bool `env:"STORAGE_S3_PATH_STYLE" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// TriggerLimit is requests per minute for the trigger and import endpoints (default: 10)
	TriggerLimit int `env:"RATE_LIMIT_TRIGGER" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TriggerSecret authorizes "Authorization: Bearer <secret>" callers for
	// every store (required)
	TriggerSecret string `env:"TRIGGER_SECRET" envAlt:"CRON_SECRET" required:"true"`

	// SessionSecret verifies HS256 session tokens scoped to one store
	SessionSecret string `env:"SESSION_SECRET"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RedisConfig holds the optional job event publisher settings.
type RedisConfig struct {
	// Addr enables job events when set, e.g. localhost:6379
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`

	// Channel is the pub/sub channel (default: translation_jobs)
	Channel string `env:"REDIS_CHANNEL" default:"translation_jobs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
