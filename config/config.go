// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/notify"
)

// Config holds all application configuration.
// Fields are populated from environment variables.
type Config struct {
	// Server settings
	Port           int      // HTTP port to listen on
	Env            string   // development, staging, production
	AllowedOrigins []string // CORS origins
	AdminToken     string   // required on /api/admin routes when set

	// Database
	DatabasePath string // Path to SQLite file

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	// Scheduled jobs
	Timezone            string // IANA zone the daily jobs run in
	EnableCron          bool
	ExpirationCheckHour int // hour of day for the reminder job
	ArchiveHour         int // hour of day for the archive job

	DefaultLanguage cycle.Language

	// Notification channels; a channel without credentials is disabled
	TelegramBotToken string
	TelegramAPIURL   string
	LineChannelToken string
	LineAPIURL       string
	SMTP             notify.SMTPConfig
}

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Load reads configuration from environment variables.
// In development, it first loads from .env file if present.
func Load() (*Config, error) {
	// Missing .env is fine; production sets the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.Env = getEnv("ENV", EnvDevelopment)
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.AdminToken = getEnv("ADMIN_TOKEN", "")

	cfg.DatabasePath = getEnv("DATABASE_PATH", "benefits.db")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")

	cfg.Timezone = getEnv("TIMEZONE", "Asia/Taipei")
	cfg.EnableCron = getEnvBool("ENABLE_CRON", true)
	cfg.ExpirationCheckHour = getEnvInt("EXPIRATION_CHECK_HOUR", 9)
	cfg.ArchiveHour = getEnvInt("ARCHIVE_HOUR", 2)

	cfg.DefaultLanguage = cycle.Language(getEnv("DEFAULT_LANGUAGE", string(cycle.DefaultLanguage)))

	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramAPIURL = getEnv("TELEGRAM_API_URL", notify.DefaultTelegramAPI)
	cfg.LineChannelToken = getEnv("LINE_CHANNEL_TOKEN", "")
	cfg.LineAPIURL = getEnv("LINE_API_URL", notify.DefaultLineAPI)
	cfg.SMTP = notify.SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     getEnvInt("SMTP_PORT", 587),
		User:     getEnv("SMTP_USER", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of: development, staging, production; got %q", c.Env))
	}

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH is required"))
	}

	if c.Env == EnvProduction && c.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required in production"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: json, console; got %q", c.LogFormat))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}

	for name, hour := range map[string]int{
		"EXPIRATION_CHECK_HOUR": c.ExpirationCheckHour,
		"ARCHIVE_HOUR":          c.ArchiveHour,
	} {
		if hour < 0 || hour > 23 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 23, got %d", name, hour))
		}
	}

	switch c.DefaultLanguage {
	case cycle.LangZhTW, cycle.LangEn:
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_LANGUAGE must be one of: zh-TW, en; got %q", c.DefaultLanguage))
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" && c.SMTP.User == "" {
		errs = append(errs, errors.New("SMTP_FROM or SMTP_USER is required when SMTP_HOST is set"))
	}

	return errors.Join(errs...)
}

// Location returns the scheduler timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// getEnv reads an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
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

// getEnvList reads a comma-separated list.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
