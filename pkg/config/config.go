package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the oyin backend.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host      string        `mapstructure:"host" validate:"required"`
	Port      string        `mapstructure:"port" validate:"required"`
	User      string        `mapstructure:"user" validate:"required"`
	Password  string        `mapstructure:"password"`
	Name      string        `mapstructure:"name" validate:"required"`
	SSLMode   string        `mapstructure:"sslmode"`
	MaxConns  int           `mapstructure:"max_conns"`
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

// DSN returns a PostgreSQL connection string based on config values.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)
}

// RedisConfig configures the Redis connection used for caching,
// rate limiting, and idempotency records.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggerConfig configures structured logging output.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`

	// File enables rotating file output when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error forwarding to Sentry.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// TelegramConfig configures the bot API access used for avatar lookups.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
}

// LeaderboardConfig tunes the leaderboard query and its cache.
type LeaderboardConfig struct {
	Limit    int           `mapstructure:"limit" validate:"omitempty,min=1,max=100"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig tunes the per-client request limiter.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"omitempty,min=1"`
	Window  time.Duration `mapstructure:"window"`
}

// IdempotencyConfig tunes idempotent request replay.
type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// I18nConfig configures message localization.
type I18nConfig struct {
	Dir         string `mapstructure:"dir"`
	DefaultLang string `mapstructure:"default_lang"`
}
