// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultAIBaseURL is the OpenAI-compatible endpoint used when neither the
// stored AI settings nor the environment provide one.
const DefaultAIBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Config holds the application configuration.
type Config struct {
	DatabasePath  string
	LogLevel      string
	FetchInterval time.Duration

	RequestTimeout time.Duration

	// Fallbacks used when the persisted AI settings row leaves a field empty.
	AIAPIKey         string
	AIBaseURL        string
	AIModel          string
	MaxSummaryLength int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     getEnv("DATABASE_PATH", "./data/briefly.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AIAPIKey:         os.Getenv("AI_API_KEY"),
		AIBaseURL:        getEnv("AI_BASE_URL", DefaultAIBaseURL),
		AIModel:          getEnv("AI_MODEL", "glm-4"),
		MaxSummaryLength: 100,
	}

	fetchMinutes, err := getEnvInt("FETCH_INTERVAL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	if fetchMinutes < 1 {
		return nil, fmt.Errorf("FETCH_INTERVAL_MINUTES must be positive, got %d", fetchMinutes)
	}
	cfg.FetchInterval = time.Duration(fetchMinutes) * time.Minute

	timeoutSeconds, err := getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	maxLen, err := getEnvInt("MAX_SUMMARY_LENGTH", 100)
	if err != nil {
		return nil, err
	}
	cfg.MaxSummaryLength = maxLen

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
