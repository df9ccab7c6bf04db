package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	// Directories
	StorageDir string // usage store, CSV catalogs, options.json, temp uploads
	ImagesDir  string // downloaded catalog images, served under /images
	PublicDir  string // static frontend assets

	// Generation webhook
	GenerateWebhookURL string
	GenerateTimeout    time.Duration
	PublicBaseURL      string // base URL the webhook uses to fetch /temp files

	// Usage ledger
	DailyLimit     int
	IdentityMode   string // cookie | ip | both
	UsageStorePath string
	UsageTimezone  string

	// Admin
	AdminUsername  string
	AdminPassword  string
	AdminJWTSecret string // empty means a random secret is generated at startup

	// Optional backends
	RedisURL    string
	DatabaseURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	storageDir := getEnv("STORAGE_DIR", "storage")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),

		StorageDir: storageDir,
		ImagesDir:  getEnv("IMAGES_DIR", "images"),
		PublicDir:  getEnv("PUBLIC_DIR", "public"),

		GenerateWebhookURL: getEnv("GENERATE_WEBHOOK_URL", ""),
		GenerateTimeout:    getDurationEnv("GENERATE_TIMEOUT", 10*time.Minute),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		DailyLimit:     getIntEnv("MAX_RATE_LIMIT", 3),
		IdentityMode:   getEnv("IDENTITY_MODE", "both"),
		UsageStorePath: getEnv("USAGE_STORE_PATH", filepath.Join(storageDir, "usage.json")),
		UsageTimezone:  getEnv("USAGE_TIMEZONE", "Asia/Ho_Chi_Minh"),

		AdminUsername:  getEnv("ADMIN_USERNAME", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}, nil
}

// TempDir returns the directory uploaded files are staged in
func (c *Config) TempDir() string {
	return filepath.Join(c.StorageDir, "temp")
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
