// Package config loads todosync configuration from the user's config
// file and environment, with working defaults when neither exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	// UserID identifies the task owner in the remote store.
	UserID string `mapstructure:"user_id"`

	// DataDir holds the local database, queue journal, daemon state,
	// and logs.
	DataDir string `mapstructure:"data_dir"`

	Remote    RemoteConfig    `mapstructure:"remote"`
	Local     LocalConfig     `mapstructure:"local"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Network   NetworkConfig   `mapstructure:"network"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// RemoteConfig locates the remote task store.
type RemoteConfig struct {
	// URL is the libSQL database URL (libsql://... or file:... for
	// local testing).
	URL string `mapstructure:"url"`

	// AuthToken authenticates against a hosted database.
	AuthToken string `mapstructure:"auth_token"`
}

// LocalConfig tunes the local store.
type LocalConfig struct {
	// MaxTasks caps the local store before eviction kicks in.
	MaxTasks int `mapstructure:"max_tasks"`
}

// QueueConfig tunes the offline action queue.
type QueueConfig struct {
	MaxSize    int           `mapstructure:"max_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SyncConfig tunes the orchestrator and daemon.
type SyncConfig struct {
	// ConfidenceThreshold for duplicate detection.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// Interval between periodic daemon sync passes.
	Interval time.Duration `mapstructure:"interval"`
}

// NetworkConfig tunes the connectivity probe.
type NetworkConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// DashboardConfig tunes the WebSocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig tunes file logging (rotation handled by lumberjack).
type LogConfig struct {
	// File is the log path; empty logs to stderr only.
	File string `mapstructure:"file"`

	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Default returns the configuration used when no file or environment
// overrides exist.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Local: LocalConfig{
			MaxTasks: 1000,
		},
		Queue: QueueConfig{
			MaxSize:    100,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Sync: SyncConfig{
			ConfidenceThreshold: 0.8,
			Interval:            5 * time.Minute,
		},
		Network: NetworkConfig{
			ProbeInterval: 15 * time.Second,
		},
		Dashboard: DashboardConfig{
			Port: 8484,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todosync"
	}
	return filepath.Join(home, ".todosync")
}

// Path returns the config file location, honoring TODOSYNC_CONFIG.
func Path() string {
	if p := os.Getenv("TODOSYNC_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads the config file and environment on top of the defaults. A
// missing config file is not an error.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// TODOSYNC_USER_ID, TODOSYNC_REMOTE_URL, TODOSYNC_REMOTE_AUTH_TOKEN, ...
	v.SetEnvPrefix("todosync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Environment variables bind only to keys viper knows about, so set
	// the flat ones explicitly.
	if id := os.Getenv("TODOSYNC_USER_ID"); id != "" {
		cfg.UserID = id
	}
	if dir := os.Getenv("TODOSYNC_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if url := os.Getenv("TODOSYNC_REMOTE_URL"); url != "" {
		cfg.Remote.URL = url
	}
	if token := os.Getenv("TODOSYNC_REMOTE_AUTH_TOKEN"); token != "" {
		cfg.Remote.AuthToken = token
	}

	return cfg, nil
}

// LocalDBPath returns where the local task database lives.
func (c *Config) LocalDBPath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// QueueJournalPath returns where the offline queue is persisted.
func (c *Config) QueueJournalPath() string {
	return filepath.Join(c.DataDir, "queue.json")
}

// LogPath returns the log file path, defaulting into the data dir.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "todosync.log")
}

// RemoteDSN composes the libSQL connection string.
func (c *Config) RemoteDSN() string {
	if c.Remote.AuthToken == "" {
		return c.Remote.URL
	}
	return c.Remote.URL + "?authToken=" + c.Remote.AuthToken
}
