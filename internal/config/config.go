// Package config provides configuration for the analytics service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	StoreDriver string
	DatabaseURL string

	// Auth
	JWTSecret string

	// Organisation whose toolkit catalog is seeded at startup
	DefaultOrgID int64

	// LLM settings
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Event admission policy file; empty uses the built-in policy.
	EventPolicyPath string

	// Resource summaries
	SummaryCron  string
	ResourceRoot string

	// OAuth
	TwitterCallbackURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 8080),
		StoreDriver:        getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL:        getEnv("DATABASE_URL", "file:apm.db?cache=shared&mode=rwc"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DefaultOrgID:       int64(getEnvInt("DEFAULT_ORG_ID", 1)),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMModel:           getEnv("LLM_MODEL", "gpt-3.5-turbo"),
		LLMTimeout:         time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		EventPolicyPath:    getEnv("EVENT_POLICY_PATH", ""),
		SummaryCron:        lookupEnv("SUMMARY_CRON", "@every 10m"),
		ResourceRoot:       getEnv("RESOURCE_ROOT", "workspace/input"),
		TwitterCallbackURL: getEnv("TWITTER_CALLBACK_URL", "http://localhost:3000/api/oauth-twitter"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// lookupEnv is getEnv, except that a variable set to "" wins over the default.
func lookupEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
