package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string

	DatabaseURL string
	RedisURL    string

	StorePrefix        string
	StoreMaxTxAttempts int

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryCloudName       string
	CloudinaryAvatarTransform string

	JWTSecret string

	SearchDebounce     time.Duration
	SearchLimit        int
	HydrateConcurrency int

	RateLimitPerMinute         int
	RateLimitBurst             int
	MutationRateLimitPerMinute int

	ReindexSchedule string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		StorePrefix: getEnv("STORE_PREFIX", "drawsocial:"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryCloudName:       os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAvatarTransform: getEnv("CLOUDINARY_AVATAR_TRANSFORM", "c_thumb,g_face,h_128,w_128"),

		JWTSecret: getEnv("JWT_SECRET", "12345"),

		ReindexSchedule: getEnv("REINDEX_SCHEDULE", "0 3 * * *"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "postgres"),
			os.Getenv("DB_PASS"),
			getEnv("DB_NAME", "drawsocial"),
			getEnv("DB_PORT", "5432"),
		)
	}

	var err error
	cfg.SearchDebounce, err = time.ParseDuration(getEnv("SEARCH_DEBOUNCE", "300ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_DEBOUNCE: %w", err)
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"STORE_MAX_TX_ATTEMPTS", 5, &cfg.StoreMaxTxAttempts},
		{"SEARCH_LIMIT", 20, &cfg.SearchLimit},
		{"HYDRATE_CONCURRENCY", 8, &cfg.HydrateConcurrency},
		{"RATE_LIMIT_PER_MINUTE", 120, &cfg.RateLimitPerMinute},
		{"RATE_LIMIT_BURST", 30, &cfg.RateLimitBurst},
		{"MUTATION_RATE_LIMIT_PER_MINUTE", 30, &cfg.MutationRateLimitPerMinute},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.fallback)
		if err != nil {
			return nil, err
		}
		*v.dst = n
	}

	return cfg, nil
}

func (c *Config) IsTest() bool {
	return c.AppEnv == "test"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
