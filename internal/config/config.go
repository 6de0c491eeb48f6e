// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Telegram transport
	BotToken           string
	TelegramAPIBaseURL string
	WebhookSecret      string

	// Google Sheets storage
	SheetID          string
	GoogleCredsJSON  string
	AuditWorksheet   string
	SlotsWorksheet   string
	MaxSlotsToList   int
	SlotColumnsLimit int

	// Dialogue engine
	ClinicTimezone string
	SessionTTL     time.Duration

	// Redis session persistence (optional; in-memory sessions when unset)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		BotToken:           getEnv("BOT_TOKEN", ""),
		TelegramAPIBaseURL: getEnv("TELEGRAM_API_BASE_URL", ""),
		WebhookSecret:      getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		SheetID:          getEnv("SHEET_ID", ""),
		GoogleCredsJSON:  getEnv("GOOGLE_CREDS_JSON", ""),
		AuditWorksheet:   getEnv("AUDIT_WORKSHEET", "SOLICITACOES"),
		SlotsWorksheet:   getEnv("SLOTS_WORKSHEET", "AGENDA"),
		MaxSlotsToList:   getEnvAsInt("MAX_SLOTS_TO_LIST", 8),
		SlotColumnsLimit: getEnvAsInt("SLOT_COLUMNS_LIMIT", 6),

		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// Validate reports the configuration gaps that prevent startup.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("config: BOT_TOKEN is required")
	}
	if c.SheetID == "" {
		return errors.New("config: SHEET_ID is required")
	}
	if c.GoogleCredsJSON == "" {
		return errors.New("config: GOOGLE_CREDS_JSON is required")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
