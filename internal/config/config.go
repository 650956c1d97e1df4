package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Blob      BlobConfig      `json:"blob"`
	Auth      AuthConfig      `json:"auth"`
	Sweep     SweepConfig     `json:"sweep"`
	Store     StoreConfig     `json:"store"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Tracing   TracingConfig   `json:"tracing"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port string `json:"port" env:"SERVER_PORT"`
	Host string `json:"host" env:"SERVER_HOST"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" env:"ALLOWED_ORIGINS"`
	// Max request body size in bytes
	MaxRequestBodySize int64 `json:"max_request_body_size" env:"MAX_REQUEST_BODY_SIZE"`
}

// DatabaseConfig holds the document store configuration.
type DatabaseConfig struct {
	Path string `json:"path" env:"DATABASE_PATH"`
}

// RedisConfig holds the cache configuration. An empty Addr selects the
// in-memory cache.
type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB"`
}

// BlobConfig holds the blob store configuration.
type BlobConfig struct {
	Dir     string `json:"dir" env:"BLOB_DIR"`
	BaseURL string `json:"base_url" env:"BLOB_BASE_URL"`
}

// AuthConfig holds the identity collaborator configuration.
type AuthConfig struct {
	TokenSecret string `json:"token_secret" env:"AUTH_TOKEN_SECRET"`
	Issuer      string `json:"issuer" env:"AUTH_ISSUER"`
}

// SweepConfig holds the background expiry sweep configuration.
type SweepConfig struct {
	Interval time.Duration `json:"interval" env:"SWEEP_INTERVAL"`
}

// StoreConfig tunes the document store client.
type StoreConfig struct {
	CallTimeout  time.Duration `json:"call_timeout" env:"STORE_CALL_TIMEOUT"`
	MaxRetries   int           `json:"max_retries" env:"STORE_MAX_RETRIES"`
	RetryBackoff time.Duration `json:"retry_backoff" env:"STORE_RETRY_BACKOFF"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" env:"RATE_LIMIT_ENABLED"`
	Rate    int  `json:"rate" env:"RATE_LIMIT_RATE"`
	Window  int  `json:"window" env:"RATE_LIMIT_WINDOW"` // in seconds
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" env:"TRACING_ENDPOINT"`
	Environment string `json:"environment" env:"TRACING_ENVIRONMENT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Pretty bool   `json:"pretty" env:"LOG_PRETTY"`
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			AllowedOrigins:     "*",
			MaxRequestBodySize: 10 << 20, // 10MB
		},
		Database: DatabaseConfig{
			Path: "./promo_console.db",
		},
		Blob: BlobConfig{
			Dir:     "./blobs",
			BaseURL: "/blobs",
		},
		Sweep: SweepConfig{
			Interval: time.Minute,
		},
		Store: StoreConfig{
			CallTimeout:  10 * time.Second,
			MaxRetries:   5,
			RetryBackoff: 25 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Tracing: TracingConfig{
			Endpoint:    "http://localhost:14268/api/traces",
			Environment: "development",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration in precedence order: built-in defaults,
// then the JSON file (if provided), then environment variables.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaults()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth token secret is required")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Store.CallTimeout <= 0 {
		return fmt.Errorf("store call timeout must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	return nil
}
