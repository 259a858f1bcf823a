package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zuristack/roster/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Avatars       AvatarConfig        `yaml:"avatars"`
	Auth          AuthConfig          `yaml:"auth"`
	SSO           SSOConfig           `yaml:"sso"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Janitor       JanitorConfig       `yaml:"janitor"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration; an empty address disables the
// token cache and distributed rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AvatarConfig holds S3-compatible object storage configuration for avatars
type AvatarConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	Region         string        `yaml:"region"`
	Bucket         string        `yaml:"bucket"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	UsePathStyle   bool          `yaml:"use_path_style"`
	PresignExpiry  time.Duration `yaml:"presign_expiry"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// AuthConfig holds credential handling configuration
type AuthConfig struct {
	// TokenTTL of zero means issued tokens never expire
	TokenTTL          time.Duration `yaml:"token_ttl"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
	MinPasswordLength int           `yaml:"min_password_length"`
	// TokenCacheSize bounds the in-process token lookup cache
	TokenCacheSize int           `yaml:"token_cache_size"`
	TokenCacheTTL  time.Duration `yaml:"token_cache_ttl"`
}

// SSOConfig holds OIDC single sign-on configuration
type SSOConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// JanitorConfig holds the maintenance job configuration
type JanitorConfig struct {
	// Schedule is a cron expression
	Schedule string `yaml:"schedule"`
	// TokenRetention is how long expired/revoked tokens are kept before
	// deletion
	TokenRetention time.Duration `yaml:"token_retention"`
	// AuditRetention is how long audit events are kept
	AuditRetention time.Duration `yaml:"audit_retention"`
	RunOnce        bool          `yaml:"run_once"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Default returns the built-in configuration defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
		},
		Avatars: AvatarConfig{
			Region:         "us-east-1",
			PresignExpiry:  15 * time.Minute,
			MaxUploadBytes: 5 << 20,
		},
		Auth: AuthConfig{
			TokenTTL:          0,
			BcryptCost:        12,
			MinPasswordLength: 8,
			TokenCacheSize:    4096,
			TokenCacheTTL:     time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 100,
			Window:   time.Minute,
		},
		Janitor: JanitorConfig{
			Schedule:       "0 3 * * *",
			TokenRetention: 30 * 24 * time.Hour,
			AuditRetention: 90 * 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "roster",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by ROSTER_CONFIG_FILE, and ROSTER_* environment variables, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("ROSTER_CONFIG_FILE"))
}

// LoadFile is Load with an explicit file path; an empty path skips the file
// layer.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.mergeEnv()
	cfg.Observability.LogLevel = ParseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	// Server
	setEnvString(&c.Server.Host, "ROSTER_HOST")
	setEnvString(&c.Server.Port, "ROSTER_PORT")
	setEnvString(&c.Server.HealthPort, "ROSTER_HEALTH_PORT")
	setEnvDuration(&c.Server.ReadTimeout, "ROSTER_READ_TIMEOUT")
	setEnvDuration(&c.Server.WriteTimeout, "ROSTER_WRITE_TIMEOUT")
	setEnvDuration(&c.Server.IdleTimeout, "ROSTER_IDLE_TIMEOUT")
	setEnvDuration(&c.Server.ShutdownTimeout, "ROSTER_SHUTDOWN_TIMEOUT")
	setEnvInt64(&c.Server.MaxBodyBytes, "ROSTER_MAX_BODY_BYTES")

	// Database
	setEnvString(&c.Database.URL, "ROSTER_POSTGRES_URL")
	setEnvInt(&c.Database.MaxOpenConns, "ROSTER_POSTGRES_MAX_CONNS")
	setEnvInt(&c.Database.MaxIdleConns, "ROSTER_POSTGRES_IDLE_CONNS")
	setEnvDuration(&c.Database.ConnMaxLifetime, "ROSTER_POSTGRES_CONN_LIFETIME")

	// Redis
	setEnvString(&c.Redis.Addr, "ROSTER_REDIS_ADDR")
	setEnvString(&c.Redis.Password, "ROSTER_REDIS_PASSWORD")
	setEnvInt(&c.Redis.DB, "ROSTER_REDIS_DB")
	setEnvInt(&c.Redis.PoolSize, "ROSTER_REDIS_POOL_SIZE")

	// Avatars
	setEnvBool(&c.Avatars.Enabled, "ROSTER_AVATARS_ENABLED")
	setEnvString(&c.Avatars.Endpoint, "ROSTER_S3_ENDPOINT")
	setEnvString(&c.Avatars.Region, "ROSTER_S3_REGION")
	setEnvString(&c.Avatars.Bucket, "ROSTER_S3_BUCKET")
	setEnvString(&c.Avatars.AccessKey, "ROSTER_S3_ACCESS_KEY")
	setEnvString(&c.Avatars.SecretKey, "ROSTER_S3_SECRET_KEY")
	setEnvBool(&c.Avatars.UsePathStyle, "ROSTER_S3_USE_PATH_STYLE")
	setEnvDuration(&c.Avatars.PresignExpiry, "ROSTER_S3_PRESIGN_EXPIRY")
	setEnvInt64(&c.Avatars.MaxUploadBytes, "ROSTER_S3_MAX_UPLOAD_BYTES")

	// Auth
	setEnvDuration(&c.Auth.TokenTTL, "ROSTER_TOKEN_TTL")
	setEnvInt(&c.Auth.BcryptCost, "ROSTER_BCRYPT_COST")
	setEnvInt(&c.Auth.MinPasswordLength, "ROSTER_MIN_PASSWORD_LENGTH")
	setEnvInt(&c.Auth.TokenCacheSize, "ROSTER_TOKEN_CACHE_SIZE")
	setEnvDuration(&c.Auth.TokenCacheTTL, "ROSTER_TOKEN_CACHE_TTL")

	// SSO
	setEnvBool(&c.SSO.Enabled, "ROSTER_SSO_ENABLED")
	setEnvString(&c.SSO.IssuerURL, "ROSTER_OIDC_ISSUER_URL")
	setEnvString(&c.SSO.ClientID, "ROSTER_OIDC_CLIENT_ID")
	setEnvString(&c.SSO.ClientSecret, "ROSTER_OIDC_CLIENT_SECRET")
	setEnvString(&c.SSO.RedirectURL, "ROSTER_OIDC_REDIRECT_URL")

	// Rate limiting
	setEnvBool(&c.RateLimit.Enabled, "ROSTER_RATE_LIMIT_ENABLED")
	setEnvInt(&c.RateLimit.Requests, "ROSTER_RATE_LIMIT_REQUESTS")
	setEnvDuration(&c.RateLimit.Window, "ROSTER_RATE_LIMIT_WINDOW")

	// Janitor
	setEnvString(&c.Janitor.Schedule, "ROSTER_JANITOR_SCHEDULE")
	setEnvDuration(&c.Janitor.TokenRetention, "ROSTER_JANITOR_TOKEN_RETENTION")
	setEnvDuration(&c.Janitor.AuditRetention, "ROSTER_JANITOR_AUDIT_RETENTION")
	setEnvBool(&c.Janitor.RunOnce, "ROSTER_JANITOR_RUN_ONCE")

	// Observability
	setEnvString(&c.Observability.LogLevelName, "ROSTER_LOG_LEVEL")
	setEnvBool(&c.Observability.MetricsEnabled, "ROSTER_METRICS_ENABLED")
	setEnvBool(&c.Observability.OTelEnabled, "ROSTER_OTEL_ENABLED")
	setEnvString(&c.Observability.OTelEndpoint, "ROSTER_OTEL_ENDPOINT")
	setEnvString(&c.Observability.OTelServiceName, "ROSTER_OTEL_SERVICE_NAME")
	setEnvString(&c.Observability.OTelServiceVersion, "ROSTER_OTEL_SERVICE_VERSION")
	setEnvBool(&c.Observability.OTelInsecure, "ROSTER_OTEL_INSECURE")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Avatars.Enabled {
		if c.Avatars.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when avatars are enabled")
		}
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" || c.SSO.RedirectURL == "" {
			return fmt.Errorf("issuer URL, client ID, client secret, and redirect URL are required when SSO is enabled")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit request count must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func setEnvString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setEnvBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func setEnvInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			*dst = intVal
		}
	}
}

func setEnvInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = intVal
		}
	}
}

func setEnvDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			*dst = duration
		}
	}
}
