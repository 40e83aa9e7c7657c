package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var managedKeys = []string{
	"APP_ENV", "PORT", "ALLOWED_ORIGINS", "DATABASE_URL", "REDIS_URL",
	"STORE_PREFIX", "STORE_MAX_TX_ATTEMPTS", "SEARCH_DEBOUNCE", "SEARCH_LIMIT",
	"HYDRATE_CONCURRENCY", "RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_BURST", "MUTATION_RATE_LIMIT_PER_MINUTE",
	"REINDEX_SCHEDULE", "CLOUDINARY_AVATAR_TRANSFORM", "JWT_SECRET",
	"DB_HOST", "DB_USER", "DB_PASS", "DB_NAME", "DB_PORT",
}

// clearEnv unsets every key Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.StorePrefix != "drawsocial:" {
		t.Errorf("StorePrefix = %q, want drawsocial:", cfg.StorePrefix)
	}
	if cfg.StoreMaxTxAttempts != 5 {
		t.Errorf("StoreMaxTxAttempts = %d, want 5", cfg.StoreMaxTxAttempts)
	}
	if cfg.SearchDebounce != 300*time.Millisecond {
		t.Errorf("SearchDebounce = %v, want 300ms", cfg.SearchDebounce)
	}
	if cfg.SearchLimit != 20 {
		t.Errorf("SearchLimit = %d, want 20", cfg.SearchLimit)
	}
	if cfg.HydrateConcurrency != 8 {
		t.Errorf("HydrateConcurrency = %d, want 8", cfg.HydrateConcurrency)
	}
	if cfg.RateLimitPerMinute != 120 || cfg.RateLimitBurst != 30 {
		t.Errorf("rate limit = %d/%d, want 120/30", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	if cfg.ReindexSchedule != "0 3 * * *" {
		t.Errorf("ReindexSchedule = %q", cfg.ReindexSchedule)
	}
	if cfg.CloudinaryAvatarTransform != "c_thumb,g_face,h_128,w_128" {
		t.Errorf("CloudinaryAvatarTransform = %q", cfg.CloudinaryAvatarTransform)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if !strings.Contains(cfg.DatabaseURL, "dbname=drawsocial") {
		t.Errorf("DatabaseURL = %q, want assembled DSN", cfg.DatabaseURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "test")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/x")
	t.Setenv("SEARCH_DEBOUNCE", "150ms")
	t.Setenv("HYDRATE_CONCURRENCY", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsTest() {
		t.Error("IsTest() = false, want true")
	}
	if got := cfg.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", got)
	}
	if cfg.DatabaseURL != "postgres://u:p@db/x" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SearchDebounce != 150*time.Millisecond {
		t.Errorf("SearchDebounce = %v, want 150ms", cfg.SearchDebounce)
	}
	if cfg.HydrateConcurrency != 3 {
		t.Errorf("HydrateConcurrency = %d, want 3", cfg.HydrateConcurrency)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "SEARCH_DEBOUNCE", "soon"},
		{"non numeric", "SEARCH_LIMIT", "twenty"},
		{"zero", "HYDRATE_CONCURRENCY", "0"},
		{"negative", "STORE_MAX_TX_ATTEMPTS", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}
