// Package config centralizes how claimdesk reads environment variables and
// exposes them as strongly typed values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the API server and the worker.
type Config struct {
	Address string `env:"CLAIMDESK_ADDRESS" envDefault:":8080"`

	// Store credentials. Required: the process fails closed when absent.
	DatabaseURL string `env:"DATABASE_URL"`

	// Object storage (S3 compatible).
	S3Endpoint   string `env:"S3_ENDPOINT"`
	S3AccessKey  string `env:"S3_ACCESS_KEY"`
	S3SecretKey  string `env:"S3_SECRET_KEY"`
	S3Region     string `env:"S3_REGION" envDefault:"us-east-1"`
	S3UseSSL     bool   `env:"S3_USE_SSL" envDefault:"false"`
	UploadBucket string `env:"UPLOAD_BUCKET" envDefault:"claim-uploads"`

	// Upload limits and signed URL lifetimes.
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"20"`
	UploadURLTTL time.Duration `env:"UPLOAD_URL_TTL" envDefault:"168h"`
	FileURLTTL   time.Duration `env:"FILE_URL_TTL" envDefault:"1h"`

	// Redis backs the asynq extraction queue. The queue is optional for the
	// API process; the worker refuses to start without it.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`
}

// MaxUploadBytes converts the configured MiB limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Load reads configuration from the environment, with .env support for local
// development. It returns an error when the store or object storage
// credentials are missing; those have no safe default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.S3Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = 168 * time.Hour
	}
	if cfg.FileURLTTL <= 0 {
		cfg.FileURLTTL = time.Hour
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}
	return cfg, nil
}
