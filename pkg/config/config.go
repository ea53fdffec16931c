package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quiverdb/quiver/pkg/log"
)

// Config is the process configuration for the Quiver gateway
type Config struct {
	// ListenAddr is the address the HTTP API binds to
	ListenAddr string `yaml:"listenAddr"`

	Log         LogConfig         `yaml:"log"`
	Etcd        EtcdConfig        `yaml:"etcd"`
	Shard       ShardConfig       `yaml:"shard"`
	Replication ReplicationConfig `yaml:"replication"`
	Resharding  ReshardingConfig  `yaml:"resharding"`
	Health      HealthConfig      `yaml:"health"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EtcdConfig points at the coordination service
type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	BasePath    string   `yaml:"basePath"`
	DialTimeout Duration `yaml:"dialTimeout"`
}

// ShardConfig controls the per-shard wire clients
type ShardConfig struct {
	RequestTimeout Duration `yaml:"requestTimeout"`
	SearchTimeout  Duration `yaml:"searchTimeout"`
	// BinaryResults selects the length-prefixed binary encoding for
	// search responses instead of JSON
	BinaryResults bool `yaml:"binaryResults"`
}

// ReplicationConfig bounds the async replication and read-repair pool
type ReplicationConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// ReshardingConfig controls the migration engine
type ReshardingConfig struct {
	BatchSize   int  `yaml:"batchSize"`
	MaxParallel int  `yaml:"maxParallel"`
	Background  bool `yaml:"background"`
}

// HealthConfig controls shard liveness probing
type HealthConfig struct {
	ProbeInterval    Duration `yaml:"probeInterval"`
	ProbeTimeout     Duration `yaml:"probeTimeout"`
	FailureThreshold int      `yaml:"failureThreshold"`
	FailureWindow    Duration `yaml:"failureWindow"`
}

// Default returns a Config with production defaults
func Default() *Config {
	return &Config{
		ListenAddr: ":7600",
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			BasePath:    "/quiver",
			DialTimeout: Duration(10 * time.Second),
		},
		Shard: ShardConfig{
			RequestTimeout: Duration(5 * time.Second),
			SearchTimeout:  Duration(10 * time.Second),
			BinaryResults:  true,
		},
		Replication: ReplicationConfig{
			Workers:   8,
			QueueSize: 4096,
		},
		Resharding: ReshardingConfig{
			BatchSize:   500,
			MaxParallel: 4,
			Background:  true,
		},
		Health: HealthConfig{
			ProbeInterval:    Duration(5 * time.Second),
			ProbeTimeout:     Duration(2 * time.Second),
			FailureThreshold: 3,
			FailureWindow:    Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("QUIVER_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("QUIVER_ETCD_ENDPOINTS"); v != "" {
		c.Etcd.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("QUIVER_ETCD_BASE_PATH"); v != "" {
		c.Etcd.BasePath = v
	}
	if v := os.Getenv("QUIVER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks configuration bounds
func (c *Config) Validate() error {
	if len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("at least one etcd endpoint is required")
	}
	if !strings.HasPrefix(c.Etcd.BasePath, "/") {
		return fmt.Errorf("etcd base path must start with /, got %q", c.Etcd.BasePath)
	}
	if c.Replication.Workers <= 0 {
		return fmt.Errorf("replication workers must be positive, got %d", c.Replication.Workers)
	}
	if c.Resharding.BatchSize <= 0 {
		return fmt.Errorf("resharding batch size must be positive, got %d", c.Resharding.BatchSize)
	}
	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health failure threshold must be positive, got %d", c.Health.FailureThreshold)
	}
	return nil
}

// LogConfigValue converts the log section into the log package's Config
func (c *Config) LogConfigValue() log.Config {
	return log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}
