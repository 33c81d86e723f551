// Package config provides configuration management for the storefront state service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultAuthMode        = "none"
	DefaultRemoteTimeout   = 10 * time.Second
	DefaultSnapshotBackend = "memory"
	DefaultSnapshotDir     = "./data"
	DefaultRedisAddr       = "localhost:6379"
	DefaultShopperIdleTTL  = 30 * time.Minute
)

// Snapshot backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Environment variable names.
const (
	EnvServerPort         = "APP_SERVER_PORT"
	EnvLogLevel           = "APP_LOG_LEVEL"
	EnvShutdownTimeout    = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled     = "APP_METRICS_ENABLED"
	EnvAuthMode           = "APP_AUTH_MODE"
	EnvBasicAuthUsers     = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys            = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
	EnvRemoteBaseURL      = "APP_REMOTE_BASE_URL"
	EnvRemoteTimeout      = "APP_REMOTE_TIMEOUT"
	EnvSnapshotBackend    = "APP_SNAPSHOT_BACKEND"
	EnvSnapshotDir        = "APP_SNAPSHOT_DIR"
	EnvRedisURL           = "APP_REDIS_URL"
	EnvRedisAddr          = "APP_REDIS_ADDR"
	EnvRedisPassword      = "APP_REDIS_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvRedisDB            = "APP_REDIS_DB"
	EnvCORSAllowedOrigins = "APP_CORS_ALLOWED_ORIGINS"
	EnvRecaptchaSiteKey   = "APP_RECAPTCHA_SITE_KEY"
	EnvTaxRate            = "APP_TAX_RATE"
	EnvCartRemoteSync     = "APP_CART_REMOTE_SYNC"
	EnvShopperIdleTTL     = "APP_SHOPPER_IDLE_TTL"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `envconfig:"APP_SERVER_PORT" default:"8080"`
	LogLevel        string        `envconfig:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"30s"`
	MetricsEnabled  bool          `envconfig:"APP_METRICS_ENABLED" default:"true"`

	// Authentication mode for the API itself: none, basic, apikey, multi.
	AuthMode string `envconfig:"APP_AUTH_MODE" default:"none"`

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string `envconfig:"APP_BASIC_AUTH_USERS"`

	// API key settings (format: "key1:name1,key2:name2").
	APIKeys string `envconfig:"APP_API_KEYS"`

	// Storefront API.
	RemoteBaseURL string        `envconfig:"APP_REMOTE_BASE_URL"`
	RemoteTimeout time.Duration `envconfig:"APP_REMOTE_TIMEOUT" default:"10s"`

	// Snapshot persistence: memory, file, redis.
	SnapshotBackend string `envconfig:"APP_SNAPSHOT_BACKEND" default:"memory"`
	SnapshotDir     string `envconfig:"APP_SNAPSHOT_DIR" default:"./data"`
	RedisURL        string `envconfig:"APP_REDIS_URL"`
	RedisAddr       string `envconfig:"APP_REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string `envconfig:"APP_REDIS_PASSWORD"`
	RedisDB         int    `envconfig:"APP_REDIS_DB" default:"0"`

	CORSAllowedOrigins []string        `envconfig:"APP_CORS_ALLOWED_ORIGINS" default:"*"`
	RecaptchaSiteKey   string          `envconfig:"APP_RECAPTCHA_SITE_KEY"`
	TaxRate            decimal.Decimal `envconfig:"APP_TAX_RATE" default:"0.18"`
	CartRemoteSync     bool            `envconfig:"APP_CART_REMOTE_SYNC" default:"false"`
	ShopperIdleTTL     time.Duration   `envconfig:"APP_SHOPPER_IDLE_TTL" default:"30m"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New(
		"auth mode must be one of: none, basic, apikey, multi",
	)
	ErrInvalidBasicAuthConfig = errors.New(
		"basic auth users must be set when auth mode is basic",
	)
	ErrInvalidAPIKeyConfig = errors.New(
		"API keys must be set when auth mode is apikey",
	)
	ErrInvalidMultiAuthConfig = errors.New(
		"at least one auth config must be provided when auth mode is multi",
	)
	ErrMissingRemoteBaseURL = errors.New("remote base URL must be set")
	ErrInvalidRemoteBaseURL = errors.New(
		"remote base URL must be an absolute http or https URL",
	)
	ErrInvalidRemoteTimeout   = errors.New("remote timeout must be positive")
	ErrInvalidSnapshotBackend = errors.New(
		"snapshot backend must be one of: memory, file, redis",
	)
	ErrInvalidSnapshotDir = errors.New(
		"snapshot dir must be set when snapshot backend is file",
	)
	ErrInvalidRedisConfig = errors.New(
		"redis URL or address must be set when snapshot backend is redis",
	)
	ErrInvalidTaxRate        = errors.New("tax rate must be between 0 and 1")
	ErrInvalidShopperIdleTTL = errors.New("shopper idle TTL must be positive")
)

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateRemote(); err != nil {
		return err
	}

	if err := c.validateSnapshots(); err != nil {
		return err
	}

	return c.validateShop()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateAuth validates API authentication configuration.
func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if !c.hasAnyAuthConfig() {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

// validateRemote validates the storefront API settings.
func (c *Config) validateRemote() error {
	if c.RemoteBaseURL == "" {
		return ErrMissingRemoteBaseURL
	}

	u, err := url.Parse(c.RemoteBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidRemoteBaseURL
	}

	if c.RemoteTimeout <= 0 {
		return ErrInvalidRemoteTimeout
	}

	return nil
}

// validateSnapshots validates snapshot backend settings.
func (c *Config) validateSnapshots() error {
	switch c.SnapshotBackend {
	case BackendMemory:
	case BackendFile:
		if c.SnapshotDir == "" {
			return ErrInvalidSnapshotDir
		}
	case BackendRedis:
		if c.RedisURL == "" && c.RedisAddr == "" {
			return ErrInvalidRedisConfig
		}
	default:
		return ErrInvalidSnapshotBackend
	}

	return nil
}

// validateShop validates checkout and shopper lifecycle settings.
func (c *Config) validateShop() error {
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}

	if c.ShopperIdleTTL <= 0 {
		return ErrInvalidShopperIdleTTL
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// hasAnyAuthConfig checks if at least one auth-related configuration is provided.
func (c *Config) hasAnyAuthConfig() bool {
	return c.BasicAuthUsers != "" || c.APIKeys != ""
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
