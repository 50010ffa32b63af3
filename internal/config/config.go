package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	LogLevel string

	JWTSecret string

	CBRURL       string
	BaseCurrency string

	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
	ReminderEmail string
	Timezone      *time.Location
	Language      string
	RebuildCron   string
	DispatchCron  string
	CallTimeout   time.Duration
	HorizonDays   int
	DispatchBatch int
}

// NewConfig loads configuration from environment variables.
// A .env file in the working directory is read first when it exists.
func NewConfig() (*Config, error) {
	// Missing .env is fine, the environment alone is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=reminders sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		CBRURL:        getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		BaseCurrency:  strings.ToUpper(getEnv("BASE_CURRENCY", "EUR")),
		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      getEnv("SMTP_PORT", "1025"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "reminders@localhost"),
		ReminderEmail: getEnv("REMINDER_EMAIL", ""),
		Language:      strings.ToLower(getEnv("REMINDER_LANGUAGE", "en")),
		RebuildCron:   getEnv("REBUILD_CRON", "5 0 * * *"),
		DispatchCron:  getEnv("DISPATCH_CRON", "* * * * *"),
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	cfg.CallTimeout, err = time.ParseDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXTERNAL_CALL_TIMEOUT: %w", err)
	}
	if cfg.HorizonDays, err = getEnvInt("HORIZON_DAYS", 45); err != nil {
		return nil, err
	}
	if cfg.DispatchBatch, err = getEnvInt("DISPATCH_BATCH", 100); err != nil {
		return nil, err
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.BaseCurrency) != 3 {
		return nil, fmt.Errorf("BASE_CURRENCY must be a 3-letter code, got %q", cfg.BaseCurrency)
	}
	if cfg.Language != "en" && cfg.Language != "pt" {
		return nil, fmt.Errorf("REMINDER_LANGUAGE must be en or pt, got %q", cfg.Language)
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be positive")
	}
	if cfg.HorizonDays <= 0 {
		return nil, fmt.Errorf("HORIZON_DAYS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
