package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Toll           TollConfig
	Camera         CameraConfig
	Pricing        PricingConfig
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	RunMigrations bool   `mapstructure:"run_migrations"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type BrokerConfig struct {
	Type string     `mapstructure:"type"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

type MQTTConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	ClientIDPrefix   string        `mapstructure:"client_id_prefix"`
	TLSEnabled       bool          `mapstructure:"tls_enabled"`
	CACertPath       string        `mapstructure:"ca_cert_path"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TollConfig configures one orchestrator instance. Every toll-service
// process owns exactly one tollbooth id.
type TollConfig struct {
	TollboothID    string        `mapstructure:"tollbooth_id"`
	CorrelationTTL time.Duration `mapstructure:"correlation_ttl"`
}

type CameraConfig struct {
	Seed int64 `mapstructure:"seed"`
}

type PricingConfig struct {
	Currency string `mapstructure:"currency"`
}

// AuthConfig maps static bearer tokens to roles for the admin HTTP API.
type AuthConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
}

type TokenConfig struct {
	Token string   `mapstructure:"token"`
	Roles []string `mapstructure:"roles"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}
