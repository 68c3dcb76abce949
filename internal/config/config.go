package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string `yaml:"port"`

	// Database
	DBDriver string `yaml:"db_driver"` // "sqlite" | "postgres"
	DBPath   string `yaml:"db_path"`   // SQLite path
	DBUrl    string `yaml:"db_url"`    // Postgres DSN

	// Blob storage
	StorageBackend string `yaml:"storage_backend"` // "local" | "s3"
	StorageDir     string `yaml:"storage_dir"`     // local backend root
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3UseSSL       bool   `yaml:"s3_use_ssl"`

	// Content cache
	RedisURL     string `yaml:"redis_url"` // empty disables caching
	CacheTTLSecs int    `yaml:"cache_ttl_seconds"`

	// Agent
	AnthropicAPIKey    string `yaml:"anthropic_api_key"`
	AgentModel         string `yaml:"agent_model"`
	AgentMaxTokens     int    `yaml:"agent_max_tokens"`
	AgentMaxIterations int    `yaml:"agent_max_iterations"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load builds the config from defaults, an optional YAML file named by
// PLAINER_CONFIG, then environment overrides, in that order.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		DBDriver:           "sqlite",
		DBPath:             "./data/plainer.db",
		StorageBackend:     "local",
		StorageDir:         "./data/blobs",
		S3Bucket:           "plainer",
		CacheTTLSecs:       300,
		AgentModel:         "claude-sonnet-4-20250514",
		AgentMaxTokens:     8096,
		AgentMaxIterations: 25,
		LogLevel:           "info",
	}

	if path := os.Getenv("PLAINER_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBDriver = getEnv("PLAINER_DB_DRIVER", cfg.DBDriver)
	cfg.DBPath = getEnv("PLAINER_DB_PATH", cfg.DBPath)
	cfg.DBUrl = getEnv("PLAINER_DATABASE_URL", cfg.DBUrl)
	cfg.StorageBackend = getEnv("PLAINER_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.StorageDir = getEnv("PLAINER_STORAGE_DIR", cfg.StorageDir)
	cfg.S3Endpoint = getEnv("PLAINER_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = getEnv("PLAINER_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("PLAINER_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Bucket = getEnv("PLAINER_S3_BUCKET", cfg.S3Bucket)
	cfg.S3UseSSL = getEnvBool("PLAINER_S3_USE_SSL", cfg.S3UseSSL)
	cfg.RedisURL = getEnv("PLAINER_REDIS_URL", cfg.RedisURL)
	cfg.CacheTTLSecs = getEnvInt("PLAINER_CACHE_TTL_SECONDS", cfg.CacheTTLSecs)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AgentModel = getEnv("PLAINER_AGENT_MODEL", cfg.AgentModel)
	cfg.AgentMaxTokens = getEnvInt("PLAINER_AGENT_MAX_TOKENS", cfg.AgentMaxTokens)
	cfg.AgentMaxIterations = getEnvInt("PLAINER_AGENT_MAX_ITERATIONS", cfg.AgentMaxIterations)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
