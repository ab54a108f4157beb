// Package config loads service configuration from the environment, with an
// optional YAML file overlay selected by CONFIG_FILE.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Tasks     TaskConfig      `yaml:"tasks"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// StorageConfig holds the sandbox root and metadata catalog settings.
type StorageConfig struct {
	Root           string `envconfig:"STORAGE_ROOT" default:"/srv/storage" yaml:"root"`
	CatalogPath    string `envconfig:"CATALOG_PATH" default:"" yaml:"catalog_path"`
	CatalogEnabled bool   `envconfig:"CATALOG_ENABLED" default:"true" yaml:"catalog_enabled"`
	ScanOnStart    bool   `envconfig:"CATALOG_SCAN_ON_START" default:"true" yaml:"scan_on_start"`
}

// UploadConfig holds streaming upload settings.
type UploadConfig struct {
	MaxConcurrent    int   `envconfig:"UPLOAD_MAX_CONCURRENT" default:"1" yaml:"max_concurrent"`
	ProgressInterval int64 `envconfig:"UPLOAD_PROGRESS_INTERVAL" default:"16777216" yaml:"progress_interval"`
}

// TaskConfig holds task registry expiry settings.
type TaskConfig struct {
	TTL             time.Duration `envconfig:"TASK_TTL" default:"24h" yaml:"ttl"`
	JanitorInterval time.Duration `envconfig:"TASK_JANITOR_INTERVAL" default:"1h" yaml:"janitor_interval"`
}

// AuthConfig holds the API access token. An empty token disables the gate.
type AuthConfig struct {
	Token string `envconfig:"AUTH_TOKEN" default:"" yaml:"token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load builds configuration from environment variables, then overlays the
// YAML file named by CONFIG_FILE when present. File values win over the
// environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Root:           "/srv/storage",
			CatalogEnabled: true,
			ScanOnStart:    true,
		},
		Upload: UploadConfig{
			MaxConcurrent:    1,
			ProgressInterval: 16 << 20,
		},
		Tasks: TaskConfig{
			TTL:             24 * time.Hour,
			JanitorInterval: time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
