// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Storage backend ("s3", "local" or "memory")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint       string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3UploadPartSize int64

	// Per-user namespace. Must contain exactly one %d and end in "/".
	RootDirTemplate string

	// Uploads
	MaxUploadSize int64

	// Rate limiting (0 = unlimited)
	RequestsPerMinute int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		DatabaseURL:       envOr("DATABASE_URL", ""),
		JWTSecret:         envOr("JWT_SECRET", ""),
		TokenTTL:          envDuration("TOKEN_TTL", 24*time.Hour),
		StorageBackend:    envOr("STORAGE_BACKEND", "s3"),
		LocalStoragePath:  envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:        envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:          envOr("S3_BUCKET", "user-files"),
		S3AccessKey:       envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:          envOr("S3_REGION", "us-east-1"),
		S3UploadPartSize:  envInt64("S3_UPLOAD_PART_SIZE", 16*1024*1024),
		RootDirTemplate:   envOr("ROOT_DIR_TEMPLATE", "user-%d-files/"),
		MaxUploadSize:     envInt64("MAX_UPLOAD_SIZE", 100*1024*1024), // 100MB default
		RequestsPerMinute: envInt("REQUESTS_PER_MINUTE", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StorageBackend {
	case "s3", "local", "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be s3, local or memory, got %q", c.StorageBackend)
	}
	if strings.Count(c.RootDirTemplate, "%d") != 1 || strings.Count(c.RootDirTemplate, "%") != 1 {
		return fmt.Errorf("ROOT_DIR_TEMPLATE must contain exactly one %%d verb, got %q", c.RootDirTemplate)
	}
	if !strings.HasSuffix(c.RootDirTemplate, "/") || strings.Count(c.RootDirTemplate, "/") != 1 {
		return fmt.Errorf("ROOT_DIR_TEMPLATE must be a single segment ending in /, got %q", c.RootDirTemplate)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
