package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardperks/benefit-engine/cycle"
	"github.com/cardperks/benefit-engine/notify"
)

var envKeys = []string{
	"PORT", "ENV", "ALLOWED_ORIGINS", "ADMIN_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "LOG_FORMAT",
	"TIMEZONE", "ENABLE_CRON", "EXPIRATION_CHECK_HOUR", "ARCHIVE_HOUR", "DEFAULT_LANGUAGE",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_API_URL", "LINE_CHANNEL_TOKEN", "LINE_API_URL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM",
}

// clearEnv unsets every key Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "benefits.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.True(t, cfg.EnableCron)
	assert.Equal(t, 9, cfg.ExpirationCheckHour)
	assert.Equal(t, 2, cfg.ArchiveHour)
	assert.Equal(t, cycle.LangZhTW, cfg.DefaultLanguage)
	assert.Equal(t, notify.DefaultTelegramAPI, cfg.TelegramAPIURL)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "Asia/Taipei", cfg.Location().String())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://cards.example.com, https://admin.example.com")
	t.Setenv("ENABLE_CRON", "false")
	t.Setenv("ARCHIVE_HOUR", "3")
	t.Setenv("DEFAULT_LANGUAGE", "en")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USER", "bot@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://cards.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.False(t, cfg.EnableCron)
	assert.Equal(t, 3, cfg.ArchiveHour)
	assert.Equal(t, cycle.LangEn, cfg.DefaultLanguage)
	assert.Equal(t, "bot-token", cfg.TelegramBotToken)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Port: 8080, Env: EnvDevelopment, DatabasePath: "benefits.db",
		LogLevel: "info", LogFormat: "json", Timezone: "Asia/Taipei",
		ExpirationCheckHour: 9, ArchiveHour: 2, DefaultLanguage: cycle.LangZhTW,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid development config", func(c *Config) {}, ""},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"unknown env", func(c *Config) { c.Env = "qa" }, "ENV"},
		{"production without admin token", func(c *Config) { c.Env = EnvProduction }, "ADMIN_TOKEN"},
		{"bad log format", func(c *Config) { c.LogFormat = "text" }, "LOG_FORMAT"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"hour out of range", func(c *Config) { c.ArchiveHour = 24 }, "ARCHIVE_HOUR"},
		{"unsupported language", func(c *Config) { c.DefaultLanguage = "ja" }, "DEFAULT_LANGUAGE"},
		{"smtp without sender", func(c *Config) { c.SMTP.Host = "smtp.example.com" }, "SMTP_FROM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := Config{Port: 0, Env: "bogus", LogLevel: "loud", LogFormat: "json", Timezone: "UTC", DefaultLanguage: cycle.LangEn}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, key := range []string{"PORT", "ENV", "DATABASE_PATH", "LOG_LEVEL"} {
		assert.True(t, strings.Contains(msg, key), "missing %s in %q", key, msg)
	}
}
