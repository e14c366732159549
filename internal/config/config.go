// Package config loads settings from defaults, an optional config.yaml, a .env
// file and the environment, in increasing priority.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr string

	DatabaseURL string
	LogSQL      bool

	JWTSecret   string
	TokenTTL    time.Duration
	LoginLimit  int
	LoginWindow time.Duration

	AdminUsername string
	AdminPassword string
	AdminBalance  int64

	WelcomeBalance int64

	TelegramToken         string
	TelegramBotUsername   string
	TelegramWebhookSecret string
	TelegramWebhookURL    string

	RemindersEnabled bool
	ReminderChatID   string
	ReminderHour     int
	Location         *time.Location

	ImportChunkSize int
	AMQPURL         string
	CORSOrigins     []string
}

var defaults = map[string]any{
	"server.addr":              ":8080",
	"db.url":                   "crm.db",
	"db.log_sql":               false,
	"auth.jwt_secret":          "",
	"auth.token_ttl":           "24h",
	"auth.login_limit":         10,
	"auth.login_window":        "1m",
	"admin.username":           "admin",
	"admin.password":           "admin",
	"admin.balance":            10000,
	"accounts.welcome_balance": 100,
	"telegram.token":           "",
	"telegram.bot_username":    "",
	"telegram.webhook_secret":  "",
	"telegram.webhook_url":     "",
	"reminders.enabled":        false,
	"reminders.chat_id":        "",
	"reminders.hour":           9,
	"reminders.timezone":       "Europe/Moscow",
	"import.chunk_size":        100,
	"queue.amqp_url":           "",
	"cors.origins":             "*",
}

var envNames = map[string][]string{
	"server.addr":              {"ADDR"},
	"db.url":                   {"DATABASE_URL"},
	"db.log_sql":               {"DB_LOG_SQL"},
	"auth.jwt_secret":          {"JWT_SECRET"},
	"auth.token_ttl":           {"TOKEN_TTL"},
	"auth.login_limit":         {"LOGIN_LIMIT"},
	"auth.login_window":        {"LOGIN_WINDOW"},
	"admin.username":           {"ADMIN_USERNAME"},
	"admin.password":           {"ADMIN_PASSWORD"},
	"admin.balance":            {"ADMIN_BALANCE"},
	"accounts.welcome_balance": {"WELCOME_BALANCE"},
	"telegram.token":           {"TG_TOKEN", "TG_BOT_TOKEN"},
	"telegram.bot_username":    {"TG_BOT_USERNAME"},
	"telegram.webhook_secret":  {"TG_WEBHOOK_SECRET"},
	"telegram.webhook_url":     {"TG_WEBHOOK_URL"},
	"reminders.enabled":        {"REMINDERS_ENABLED"},
	"reminders.chat_id":        {"CHAT_ID"},
	"reminders.hour":           {"REMIND_HOUR"},
	"reminders.timezone":       {"TZ_NAME"},
	"import.chunk_size":        {"IMPORT_CHUNK_SIZE"},
	"queue.amqp_url":           {"AMQP_URL"},
	"cors.origins":             {"CORS_ORIGINS"},
}

// Load reads .env and config.yaml from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] .env: %v", err)
	}
	return LoadFrom(".")
}

// LoadFrom reads config.yaml (if any) from dir plus the environment.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for k, names := range envNames {
		if err := v.BindEnv(append([]string{k}, names...)...); err != nil {
			return nil, err
		}
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Addr:                  v.GetString("server.addr"),
		DatabaseURL:           v.GetString("db.url"),
		LogSQL:                v.GetBool("db.log_sql"),
		JWTSecret:             v.GetString("auth.jwt_secret"),
		TokenTTL:              duration(v, "auth.token_ttl"),
		LoginLimit:            positiveInt(v, "auth.login_limit"),
		LoginWindow:           duration(v, "auth.login_window"),
		AdminUsername:         v.GetString("admin.username"),
		AdminPassword:         v.GetString("admin.password"),
		AdminBalance:          v.GetInt64("admin.balance"),
		WelcomeBalance:        v.GetInt64("accounts.welcome_balance"),
		TelegramToken:         strings.TrimSpace(v.GetString("telegram.token")),
		TelegramBotUsername:   strings.TrimPrefix(strings.TrimSpace(v.GetString("telegram.bot_username")), "@"),
		TelegramWebhookSecret: v.GetString("telegram.webhook_secret"),
		TelegramWebhookURL:    strings.TrimSpace(v.GetString("telegram.webhook_url")),
		RemindersEnabled:      v.GetBool("reminders.enabled"),
		ReminderChatID:        strings.TrimSpace(v.GetString("reminders.chat_id")),
		ReminderHour:          v.GetInt("reminders.hour"),
		ImportChunkSize:       positiveInt(v, "import.chunk_size"),
		AMQPURL:               strings.TrimSpace(v.GetString("queue.amqp_url")),
		CORSOrigins:           splitList(v.GetString("cors.origins")),
	}

	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		cfg.ReminderHour = defaults["reminders.hour"].(int)
	}
	if cfg.AdminBalance < 0 {
		cfg.AdminBalance = int64(defaults["admin.balance"].(int))
	}
	if cfg.WelcomeBalance < 0 {
		cfg.WelcomeBalance = int64(defaults["accounts.welcome_balance"].(int))
	}

	loc, err := time.LoadLocation(v.GetString("reminders.timezone"))
	if err != nil {
		log.Printf("[config] timezone %q: %v; using UTC", v.GetString("reminders.timezone"), err)
		loc = time.UTC
	}
	cfg.Location = loc

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		log.Printf("[config] JWT_SECRET not set; tokens will not survive a restart")
	}
	return cfg, nil
}

// duration falls back to the default when the value is missing or invalid.
func duration(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(defaults[key].(string))
	return d
}

func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaults[key].(int)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
