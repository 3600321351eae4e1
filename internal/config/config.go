// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway, sourced from environment
// variables at startup.
type Config struct {
	Port string
	Env  string

	DatabaseURL string
	RedisURL    string

	SecretKey string

	OpenAIAPIKey      string
	DeepSeekAPIKey    string
	HuggingFaceAPIKey string

	LogLevel string

	ProviderTimeout time.Duration

	DefaultRateLimitPerMinute int
}

// Load reads configuration from the environment, falling back to a local
// .env file if present. It fails fast if required settings are missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                      getEnv("PORT", "8080"),
		Env:                       getEnv("ENVIRONMENT", "dev"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		RedisURL:                  getEnv("REDIS_URL", "redis://localhost:6379"),
		SecretKey:                 getEnv("SECRET_KEY", "change-me-in-production"),
		OpenAIAPIKey:              getEnv("OPENAI_API_KEY", ""),
		DeepSeekAPIKey:            getEnv("DEEPSEEK_API_KEY", ""),
		HuggingFaceAPIKey:         getEnv("HUGGINGFACE_API_KEY", ""),
		LogLevel:                  getEnv("LOG_LEVEL", "INFO"),
		ProviderTimeout:           time.Duration(getEnvInt("PROVIDER_TIMEOUT", 30)) * time.Second,
		DefaultRateLimitPerMinute: getEnvInt("DEFAULT_RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.OpenAIAPIKey == "" && cfg.DeepSeekAPIKey == "" && cfg.HuggingFaceAPIKey == "" {
		return nil, fmt.Errorf("at least one provider API key is required (OPENAI_API_KEY, DEEPSEEK_API_KEY, or HUGGINGFACE_API_KEY)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
