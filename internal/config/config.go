package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL    string
	MigrationsPath string

	// JWT
	JWTSecret          string
	JWTExpirationHours int

	// Storage (rendered receipts)
	StoragePath string

	// Background Workers
	WorkerCount          int
	OverdueCheckInterval time.Duration

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string

	// Email (Resend)
	EnableEmailNotifications bool
	ResendAPIKey             string
	FromEmail                string

	// School / receipts
	SchoolName         string
	Currency           string
	ReceiptPrefix      string
	ReceiptMaxAttempts int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		Environment:              getEnv("ENVIRONMENT", "development"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		MigrationsPath:           getEnv("MIGRATIONS_PATH", "file://migrations"),
		JWTSecret:                getEnv("JWT_SECRET", ""),
		JWTExpirationHours:       getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		StoragePath:              getEnv("STORAGE_PATH", "./storage"),
		WorkerCount:              getEnvAsInt("WORKER_COUNT", 5),
		OverdueCheckInterval:     getEnvAsDuration("OVERDUE_CHECK_INTERVAL", time.Hour),
		AllowedOrigins:           getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:                getEnv("SENTRY_DSN", ""),
		EnableEmailNotifications: getEnvAsBool("ENABLE_EMAIL_NOTIFICATIONS", false),
		ResendAPIKey:             getEnv("RESEND_API_KEY", ""),
		FromEmail:                getEnv("FROM_EMAIL", ""),
		SchoolName:               getEnv("SCHOOL_NAME", "School"),
		Currency:                 getEnv("CURRENCY", "USD"),
		ReceiptPrefix:            getEnv("RECEIPT_PREFIX", "RCP"),
		ReceiptMaxAttempts:       getEnvAsInt("RECEIPT_MAX_ATTEMPTS", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Set default JWT secret for development
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.ReceiptMaxAttempts < 1 {
		return fmt.Errorf("RECEIPT_MAX_ATTEMPTS must be at least 1")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

// IsProduction reports whether the app runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool reads an environment variable as boolean
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads an environment variable as a Go duration ("30m", "1h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
