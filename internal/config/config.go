package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models reviewline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Store struct {
		BusyTimeoutMS int `yaml:"busy_timeout_ms"`
	} `yaml:"store"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Lifecycle struct {
		// LockTimeoutMS bounds the wait for another transition on the same
		// system. Zero waits until the request context ends.
		LockTimeoutMS int `yaml:"lock_timeout_ms"`
	} `yaml:"lifecycle"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "disabled": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Log.Level != "" && !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error, disabled", c.Log.Level)
	}
	if c.Store.BusyTimeoutMS < 0 {
		return fmt.Errorf("config.store.busy_timeout_ms must be >= 0")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config.metrics.path must start with '/' when metrics are enabled")
	}
	if c.Lifecycle.LockTimeoutMS < 0 {
		return fmt.Errorf("config.lifecycle.lock_timeout_ms must be >= 0")
	}
	return nil
}

// LockTimeout returns the per-system lock wait as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lifecycle.LockTimeoutMS) * time.Millisecond
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reviewline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(DefaultYAML)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const DefaultYAML = `server:
  addr: "127.0.0.1:8080"
  base_path: /api/v1

log:
  level: info
  pretty: false

store:
  busy_timeout_ms: 5000

metrics:
  enabled: true
  path: /metrics

lifecycle:
  lock_timeout_ms: 10000
`
