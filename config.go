package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendDynamo = "dynamodb"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	ServerPort      string `env:"SERVER_PORT" envDefault:"8080"`
	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"dynamodb"`
	DynamoEndpoint  string `env:"DYNAMODB_ENDPOINT"`
	DynamoTableName string `env:"DYNAMODB_TABLE_NAME" envDefault:"user-preferences"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-east-1"`
	RedisURL        string `env:"REDIS_URL"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"prefsync.db"`
	KeyNamespace    string `env:"KEY_NAMESPACE" envDefault:"prefsync"`
	RegistrySize    int    `env:"REGISTRY_CAPACITY" envDefault:"10000"`
	JWTSecret       string `env:"JWT_SECRET"`
	JWTIssuer       string `env:"JWT_ISSUER"`
	CORSAllowOrigin string `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
	LogLevelName    string `env:"LOG_LEVEL"`
	DevBypassAuth   bool   `env:"DEV_BYPASS_AUTH"`

	LogLevel slog.Level `env:"-"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch cfg.StorageBackend {
	case BackendDynamo, BackendSQLite, BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
