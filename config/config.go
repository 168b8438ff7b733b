package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/microsoft/powerplatform-vscode-sub000/pac"
	"github.com/microsoft/powerplatform-vscode-sub000/paths"
)

// DefaultAutomationAgent identifies pacbridge to pac when no agent is set.
const DefaultAutomationAgent = "pacbridge"

// DefaultCacheTTL is how long read-only replies are served from cache.
const DefaultCacheTTL = 30 * time.Second

// Config holds pacbridge settings, read from pacbridge.yaml.
type Config struct {
	Pac     PacConfig     `yaml:"pac"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Debug   bool          `yaml:"debug,omitempty"`
	LogFile string        `yaml:"log_file,omitempty"` // defaults to logs/pacbridge.log

	filePath string
}

// PacConfig controls how the pac process is found and driven.
type PacConfig struct {
	Executable      string   `yaml:"executable,omitempty"` // explicit path; otherwise located
	ToolDir         string   `yaml:"tool_dir,omitempty"`   // searched before PATH
	AutomationAgent string   `yaml:"automation_agent,omitempty"`
	Env             []string `yaml:"env,omitempty"` // extra KEY=VALUE pairs

	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	CommandTimeout   Duration `yaml:"command_timeout"` // negative disables
	StopGrace        Duration `yaml:"stop_grace"`

	// WatchExecutable restarts pac when its binary is replaced. Only the
	// interactive shell honours it.
	WatchExecutable bool `yaml:"watch_executable,omitempty"`
}

// CacheConfig controls the reply cache. A zero TTL disables it.
type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Duration is a time.Duration read from strings like "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Pac: PacConfig{
			AutomationAgent:  DefaultAutomationAgent,
			HandshakeTimeout: Duration{pac.DefaultHandshakeTimeout},
			CommandTimeout:   Duration{pac.DefaultCommandTimeout},
			StopGrace:        Duration{pac.DefaultStopGrace},
		},
		Cache: CacheConfig{TTL: Duration{DefaultCacheTTL}},
	}
}

// Load reads the config at path, or at paths.ConfigFilePath when path is
// empty. A missing file yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = paths.ConfigFilePath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal over the defaults so omitted keys keep them.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if errs := Validate(cfg); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid config %s: %w", path, errors.Join(joined...))
	}
	return cfg, nil
}

// Save writes the config to the path it was loaded from.
func (c *Config) Save() error {
	if c.filePath == "" {
		return errors.New("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// FilePath returns where the config lives on disk.
func (c *Config) FilePath() string {
	return c.filePath
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.filePath = path
}

// ResolveExecutable returns the configured pac binary, locating it in the
// tool directory or on PATH when no explicit path is set.
func (c *Config) ResolveExecutable() (string, error) {
	if c.Pac.Executable != "" {
		if _, err := os.Stat(c.Pac.Executable); err != nil {
			return "", fmt.Errorf("%w: %s", pac.ErrExecutableNotFound, c.Pac.Executable)
		}
		return c.Pac.Executable, nil
	}

	toolDir := c.Pac.ToolDir
	if toolDir == "" {
		if dir, err := paths.ToolsDir(); err == nil {
			toolDir = dir
		}
	}
	return pac.Locate(toolDir)
}

// ChannelConfig builds the settings for pac.Open. pac runs from the
// directory holding its binary.
func (c *Config) ChannelConfig() (pac.Config, error) {
	exe, err := c.ResolveExecutable()
	if err != nil {
		return pac.Config{}, err
	}
	return pac.Config{
		Executable:       exe,
		WorkingDir:       filepath.Dir(exe),
		AutomationAgent:  c.Pac.AutomationAgent,
		Env:              c.Pac.Env,
		HandshakeTimeout: c.Pac.HandshakeTimeout.Duration,
		CommandTimeout:   c.Pac.CommandTimeout.Duration,
		StopGrace:        c.Pac.StopGrace.Duration,
	}, nil
}
