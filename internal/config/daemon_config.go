/**
 * CONTEXT:   Daemon configuration: defaults, env-var overrides, optional YAML file, flag precedence
 * INPUT:     Environment variables, an optional config file, and parsed CLI flags
 * OUTPUT:    A validated DaemonConfig ready to build daemonize.Config and engine.Paths from
 * BUSINESS:  Every deployment needs to tune work dir, PID/state file paths, and daemonize behavior
 * CHANGE:    Rewritten for the daemon engine; replaces the original HTTP-server configuration
 * RISK:      Low - Configuration loading with validation, no side effects beyond directory creation
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig holds every operational parameter the daemon's flag surface
// exposes, layered file-then-env-then-flag (flags always win).
type DaemonConfig struct {
	NoDaemon      bool          `json:"no_daemon" yaml:"no_daemon"`
	ChrootDir     string        `json:"chroot_dir" yaml:"chroot_dir"`
	WorkDir       string        `json:"work_dir" yaml:"work_dir"`
	PIDFile       string        `json:"pid_file" yaml:"pid_file"`
	StateFile     string        `json:"state_file" yaml:"state_file"`
	RunLogDir     string        `json:"run_log_dir" yaml:"run_log_dir"`
	Umask         int           `json:"umask" yaml:"umask"`
	StatsInterval time.Duration `json:"stats_interval" yaml:"stats_interval"`
	Parallel      bool          `json:"parallel" yaml:"parallel"`
	LogLevel      string        `json:"log_level" yaml:"log_level"`
	LogFormat     string        `json:"log_format" yaml:"log_format"`
}

// Defaults applied by NewDefaultConfig before any override layer runs.
const (
	DefaultWorkDir       = "/"
	DefaultPIDFile       = "/var/run/daemonkitd.pid"
	DefaultStateFile     = "/var/run/daemonkitd.state.json"
	DefaultRunLogDir     = "/var/log/daemonkitd/runs"
	DefaultUmask         = 0o002
	DefaultStatsInterval = 300 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
)

// NewDefaultConfig returns the zero-configuration starting point every
// other layer (file, env, flags) overrides pieces of.
func NewDefaultConfig() *DaemonConfig {
	return &DaemonConfig{
		WorkDir:       DefaultWorkDir,
		PIDFile:       DefaultPIDFile,
		StateFile:     DefaultStateFile,
		RunLogDir:     DefaultRunLogDir,
		Umask:         DefaultUmask,
		StatsInterval: DefaultStatsInterval,
		Parallel:      false,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}
}

// LoadFile merges a YAML config file on top of cfg. A missing path is not
// an error: the caller passes "" when no --config flag was given.
func LoadFile(cfg *DaemonConfig, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges DAEMONKIT_-prefixed environment variables on top of cfg.
func LoadEnv(cfg *DaemonConfig) {
	if v := os.Getenv("DAEMONKIT_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("DAEMONKIT_CHROOT_DIR"); v != "" {
		cfg.ChrootDir = v
	}
	if v := os.Getenv("DAEMONKIT_PID_FILE"); v != "" {
		cfg.PIDFile = v
	}
	if v := os.Getenv("DAEMONKIT_STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv("DAEMONKIT_RUN_LOG_DIR"); v != "" {
		cfg.RunLogDir = v
	}
	if v := os.Getenv("DAEMONKIT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DAEMONKIT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DAEMONKIT_STATS_INTERVAL"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.StatsInterval = dur
		}
	}
	if v := os.Getenv("DAEMONKIT_NO_DAEMON"); v == "1" || v == "true" {
		cfg.NoDaemon = true
	}
	if v := os.Getenv("DAEMONKIT_PARALLEL"); v == "1" || v == "true" {
		cfg.Parallel = true
	}
}

// Validate checks cfg for the invariants the daemonizer and engine rely on.
func (c *DaemonConfig) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("config: work dir cannot be empty")
	}
	if c.PIDFile == "" {
		return fmt.Errorf("config: pid file cannot be empty")
	}
	if c.Umask < 0 || c.Umask > 0o777 {
		return fmt.Errorf("config: umask out of range: %#o", c.Umask)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("config: stats interval must be positive, got %v", c.StatsInterval)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true, "legacy": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("config: invalid log format %q", c.LogFormat)
	}

	if err := os.MkdirAll(filepath.Dir(c.PIDFile), 0755); err != nil {
		return fmt.Errorf("config: create pid file directory: %w", err)
	}
	if c.StateFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.StateFile), 0755); err != nil {
			return fmt.Errorf("config: create state file directory: %w", err)
		}
	}
	if c.RunLogDir != "" {
		if err := os.MkdirAll(c.RunLogDir, 0755); err != nil {
			return fmt.Errorf("config: create run log directory: %w", err)
		}
	}
	return nil
}

// SaveToFile writes cfg as YAML, for `daemonkitd config dump` style tooling.
func (c *DaemonConfig) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
