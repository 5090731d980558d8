package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_PATH", "LOG_LEVEL", "FETCH_INTERVAL_MINUTES",
		"REQUEST_TIMEOUT_SECONDS", "AI_API_KEY", "AI_BASE_URL",
		"AI_MODEL", "MAX_SUMMARY_LENGTH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := &Config{
		DatabasePath:     "./data/briefly.db",
		LogLevel:         "info",
		FetchInterval:    time.Hour,
		RequestTimeout:   30 * time.Second,
		AIBaseURL:        DefaultAIBaseURL,
		AIModel:          "glm-4",
		MaxSummaryLength: 100,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_PATH", "/tmp/x.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FETCH_INTERVAL_MINUTES", "15")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("AI_BASE_URL", "https://ai.example.com/v1")
	t.Setenv("AI_MODEL", "glm-4-flash")
	t.Setenv("MAX_SUMMARY_LENGTH", "80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := &Config{
		DatabasePath:     "/tmp/x.db",
		LogLevel:         "debug",
		FetchInterval:    15 * time.Minute,
		RequestTimeout:   5 * time.Second,
		AIAPIKey:         "sk-test",
		AIBaseURL:        "https://ai.example.com/v1",
		AIModel:          "glm-4-flash",
		MaxSummaryLength: 80,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric interval", "FETCH_INTERVAL_MINUTES", "soon"},
		{"zero interval", "FETCH_INTERVAL_MINUTES", "0"},
		{"negative interval", "FETCH_INTERVAL_MINUTES", "-5"},
		{"non-numeric timeout", "REQUEST_TIMEOUT_SECONDS", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
