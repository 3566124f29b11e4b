package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/taskmirror/pkg/model"
)

const (
	xdgAppName = "taskmirror"
	configFile = "config.yaml"
)

// Config is the engine's tunable surface plus the credentials handed to it
// by whatever issued them. Everything has a working default except the
// credentials.
type Config struct {
	Workspace       string `yaml:"workspace"`
	ContainerPrefix string `yaml:"container_prefix"`

	Retry struct {
		BaseDelayMS int     `yaml:"base_delay_ms"`
		MaxDelayMS  int     `yaml:"max_delay_ms"`
		MaxRetries  int     `yaml:"max_retries"`
		Multiplier  float64 `yaml:"multiplier"`
	} `yaml:"retry"`

	Bulk struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkPauseMS int `yaml:"chunk_pause_ms"`
	} `yaml:"bulk"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Credentials model.Credentials `yaml:"credentials"`
}

// Default returns a config with every tunable at its default.
func Default() *Config {
	cfg := &Config{
		Workspace:       "default",
		ContainerPrefix: "TaskMirror",
	}
	cfg.Retry.BaseDelayMS = 1000
	cfg.Retry.MaxDelayMS = 30000
	cfg.Retry.MaxRetries = 3
	cfg.Retry.Multiplier = 2
	cfg.Bulk.ChunkSize = 3
	cfg.Bulk.ChunkPauseMS = 500
	cfg.Log.Level = "info"
	return cfg
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// ChunkPause returns the inter-chunk pause as a duration.
func (c *Config) ChunkPause() time.Duration {
	return time.Duration(c.Bulk.ChunkPauseMS) * time.Millisecond
}

// Path returns the config file location under the user's config directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName, configFile), nil
}

// Load reads the config file, falling back to defaults when it does not
// exist. Missing fields keep their defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// SaveDefaultIfMissing writes the defaults to path when no file exists yet,
// so a first run leaves the user a file to edit. It reports whether a file
// was written.
func SaveDefaultIfMissing(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := SaveTo(Default(), path); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes the config, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to an explicit path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// 0600: the file may carry bearer tokens.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyDefaults backfills zero values a hand-edited file may have dropped.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Workspace == "" {
		c.Workspace = d.Workspace
	}
	if c.ContainerPrefix == "" {
		c.ContainerPrefix = d.ContainerPrefix
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = d.Retry.BaseDelayMS
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = d.Retry.MaxDelayMS
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = d.Retry.Multiplier
	}
	if c.Bulk.ChunkSize <= 0 {
		c.Bulk.ChunkSize = d.Bulk.ChunkSize
	}
	if c.Bulk.ChunkPauseMS <= 0 {
		c.Bulk.ChunkPauseMS = d.Bulk.ChunkPauseMS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}
