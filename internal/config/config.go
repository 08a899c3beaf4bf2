// Package config loads daemon configuration from a YAML file and
// GOFLOW_SYNC_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration.
type Config struct {
	// DeviceID identifies this device to the sync server. Required.
	DeviceID string `mapstructure:"device_id"`

	// ServerURL is the base URL of the sync server. Required.
	ServerURL string `mapstructure:"server_url"`

	// DataDir holds the operation queue database and related state.
	DataDir string `mapstructure:"data_dir"`

	// SpoolDir is where the editor drops mutation descriptors.
	SpoolDir string `mapstructure:"spool_dir"`

	// Projects lists the project ids to sync.
	Projects []string `mapstructure:"projects"`

	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// SyncConfig tunes the per-project sync engines.
type SyncConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	Interval          time.Duration `mapstructure:"interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
}

// DashboardConfig controls the monitoring WebSocket server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LogConfig controls daemon log output and rotation.
type LogConfig struct {
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file"`

	// MaxSizeMB rotates the log file once it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`

	// MaxAgeDays removes rotated files older than this.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// QueuePath returns the operation queue database path under DataDir.
func (c *Config) QueuePath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the GOFLOW_SYNC prefix with
// underscores, e.g. GOFLOW_SYNC_SERVER_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "data")
	v.SetDefault("spool_dir", "spool")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.interval", 5*time.Second)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_delay", 2*time.Second)
	v.SetDefault("sync.backoff_multiplier", 2.0)
	v.SetDefault("sync.max_retry_delay", time.Duration(0))
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8335)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	v.SetEnvPrefix("GOFLOW_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, so every key is
	// bound explicitly; without this, variables for keys absent from the
	// file (device_id on an env-only host, say) would be ignored.
	for _, key := range []string{
		"device_id", "server_url", "data_dir", "spool_dir", "projects",
		"sync.batch_size", "sync.interval", "sync.max_retries",
		"sync.retry_delay", "sync.backoff_multiplier", "sync.max_retry_delay",
		"dashboard.enabled", "dashboard.port",
		"log.file", "log.max_size_mb", "log.max_backups", "log.max_age_days",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment key %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("at least one project is required")
	}
	return nil
}
