package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig      `json:"database" yaml:"database"`
	Redis    RedisConfig         `json:"redis" yaml:"redis"`
	Runner   RunnerConfig        `json:"runner" yaml:"runner"`
	Signing  SigningConfig       `json:"signing" yaml:"signing"`
	Observer ObservabilityConfig `json:"observability" yaml:"observability"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type RedisConfig struct {
	URL          string `json:"url" yaml:"url"`
	IntakeQueue  string `json:"intake_queue" yaml:"intake_queue"`
	EventChannel string `json:"event_channel" yaml:"event_channel"`
}

type RunnerConfig struct {
	MaxParallelBatches  int    `json:"max_parallel_batches" yaml:"max_parallel_batches"`
	DefaultConcurrency  int    `json:"default_concurrency" yaml:"default_concurrency"`
	DefaultTimeoutSec   int    `json:"default_timeout_sec" yaml:"default_timeout_sec"`
	DefaultDatasetPath  string `json:"default_dataset_path" yaml:"default_dataset_path"`
	SemanticConcurrency int    `json:"semantic_concurrency" yaml:"semantic_concurrency"`
}

type SigningConfig struct {
	PrivateKeyPath string `json:"private_key_path" yaml:"private_key_path"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379",
			IntakeQueue:  "he300:intake",
			EventChannel: "he300:events",
		},
		Runner: RunnerConfig{
			MaxParallelBatches:  2,
			DefaultConcurrency:  5,
			DefaultTimeoutSec:   60,
			SemanticConcurrency: 2,
		},
		Signing: SigningConfig{
			PrivateKeyPath: "./data/he300-signer.pem",
		},
		Observer: ObservabilityConfig{
			ServiceName: "he300-node",
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads a YAML or JSON config file; an empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if strings.TrimSpace(cfg.Redis.IntakeQueue) == "" {
		cfg.Redis.IntakeQueue = "he300:intake"
	}
	if strings.TrimSpace(cfg.Redis.EventChannel) == "" {
		cfg.Redis.EventChannel = "he300:events"
	}
	if cfg.Runner.MaxParallelBatches <= 0 {
		cfg.Runner.MaxParallelBatches = 2
	}
	if cfg.Runner.DefaultConcurrency <= 0 {
		cfg.Runner.DefaultConcurrency = 5
	}
	if cfg.Runner.DefaultTimeoutSec <= 0 {
		cfg.Runner.DefaultTimeoutSec = 60
	}
	if cfg.Runner.SemanticConcurrency <= 0 {
		cfg.Runner.SemanticConcurrency = 2
	}
	if strings.TrimSpace(cfg.Signing.PrivateKeyPath) == "" {
		cfg.Signing.PrivateKeyPath = "./data/he300-signer.pem"
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "he300-node"
	}
}
