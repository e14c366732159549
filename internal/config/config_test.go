package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "crm.db", cfg.DatabaseURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.LoginLimit)
	assert.Equal(t, time.Minute, cfg.LoginWindow)
	assert.EqualValues(t, 100, cfg.WelcomeBalance)
	assert.EqualValues(t, 10000, cfg.AdminBalance)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, 100, cfg.ImportChunkSize)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Len(t, cfg.JWTSecret, 64, "a random secret is generated")
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://crm@localhost/crm")
	t.Setenv("TG_BOT_TOKEN", "123:abc")
	t.Setenv("TG_BOT_USERNAME", "@lead_bot")
	t.Setenv("TOKEN_TTL", "not-a-duration")
	t.Setenv("IMPORT_CHUNK_SIZE", "-3")
	t.Setenv("REMIND_HOUR", "30")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_SECRET", "fixed")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://crm@localhost/crm", cfg.DatabaseURL)
	assert.Equal(t, "123:abc", cfg.TelegramToken, "TG_BOT_TOKEN is an alias")
	assert.Equal(t, "lead_bot", cfg.TelegramBotUsername)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL, "invalid durations fall back")
	assert.Equal(t, 100, cfg.ImportChunkSize)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "fixed", cfg.JWTSecret)
}

func TestLoadFrom_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  addr: \":7000\"\nreminders:\n  enabled: true\n  chat_id: \"-100500\"\n  timezone: UTC\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("ADDR", "")
	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr)
	assert.True(t, cfg.RemindersEnabled)
	assert.Equal(t, "-100500", cfg.ReminderChatID)
	assert.Equal(t, time.UTC, cfg.Location)
}
