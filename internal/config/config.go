// Package config handles configuration loading, validation, and persistence for emojid.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"emojid/internal/keystroke"
	"emojid/internal/logging"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine tunes buffering, matching and timing.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Keybindings maps commands to key chords.
	Keybindings keystroke.Bindings `toml:"keybindings" json:"keybindings" yaml:"keybindings"`

	// Registry selects the shortcut table.
	Registry RegistryConfig `toml:"registry" json:"registry" yaml:"registry"`

	// Overlay selects how candidates are shown.
	Overlay OverlayConfig `toml:"overlay" json:"overlay" yaml:"overlay"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics exposes engine counters over HTTP.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// History records accepted expansions.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Control is the local socket the CLI uses to reach a running daemon.
	Control ControlConfig `toml:"control" json:"control" yaml:"control"`
}

// EngineConfig holds expansion engine settings.
type EngineConfig struct {
	// BufferCapacity is the number of grapheme clusters remembered.
	BufferCapacity int `toml:"buffer_capacity" json:"buffer_capacity" yaml:"buffer_capacity"`

	// CandidateLimit caps the autocomplete list.
	CandidateLimit int `toml:"candidate_limit" json:"candidate_limit" yaml:"candidate_limit"`

	// Marker starts an autocomplete session.
	Marker string `toml:"marker" json:"marker" yaml:"marker"`

	// MatchPolicy is "longest" or "first".
	MatchPolicy string `toml:"match_policy" json:"match_policy" yaml:"match_policy"`

	// SettleDelayMs is the wait between paste and clipboard restore.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms" yaml:"settle_delay_ms"`

	// EventQueueSize bounds the hook-to-engine channel.
	EventQueueSize int `toml:"event_queue_size" json:"event_queue_size" yaml:"event_queue_size"`

	// DecisionTimeoutMs bounds how long a suppressing hook waits for the
	// consume decision.
	DecisionTimeoutMs int `toml:"decision_timeout_ms" json:"decision_timeout_ms" yaml:"decision_timeout_ms"`

	// PermissionPollSec is how often run re-checks a missing permission.
	PermissionPollSec int `toml:"permission_poll_sec" json:"permission_poll_sec" yaml:"permission_poll_sec"`
}

// SettleDelay returns SettleDelayMs as a duration.
func (e EngineConfig) SettleDelay() time.Duration {
	return time.Duration(e.SettleDelayMs) * time.Millisecond
}

// DecisionTimeout returns DecisionTimeoutMs as a duration.
func (e EngineConfig) DecisionTimeout() time.Duration {
	return time.Duration(e.DecisionTimeoutMs) * time.Millisecond
}

// PermissionPoll returns PermissionPollSec as a duration.
func (e EngineConfig) PermissionPoll() time.Duration {
	return time.Duration(e.PermissionPollSec) * time.Second
}

// RegistryConfig selects the shortcut table.
type RegistryConfig struct {
	// Path is a user table (.toml, .yaml, .json). Empty uses built-ins only.
	Path string `toml:"path" json:"path" yaml:"path"`

	// IncludeBuiltin merges the built-in table under the user table.
	IncludeBuiltin bool `toml:"include_builtin" json:"include_builtin" yaml:"include_builtin"`
}

// OverlayConfig selects the overlay backend.
type OverlayConfig struct {
	// Backend is "log", "notify" or "none".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// LoggerConfig converts to a logging.Config.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	cfg.FilePath = l.FilePath
	cfg.MaxSize = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	cfg.MaxAge = l.MaxAgeDays
	cfg.Compress = l.Compress
	return cfg, nil
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// HistoryConfig holds expansion history settings.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays prunes older records at startup. 0 keeps everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// ControlConfig holds the control socket settings.
type ControlConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			BufferCapacity:    50,
			CandidateLimit:    10,
			Marker:            ":",
			MatchPolicy:       "longest",
			SettleDelayMs:     100,
			EventQueueSize:    keystroke.DefaultQueueSize,
			DecisionTimeoutMs: int(keystroke.DefaultDecisionTimeout / time.Millisecond),
			PermissionPollSec: 2,
		},
		Keybindings: keystroke.DefaultBindings(),
		Registry: RegistryConfig{
			Path:           "",
			IncludeBuiltin: true,
		},
		Overlay: OverlayConfig{
			Backend: "log",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "emojid.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9477",
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(EmojidDir(), "history.db"),
			RetentionDays: 90,
		},
		Control: ControlConfig{
			Enabled:    true,
			SocketPath: filepath.Join(EmojidDir(), "emojid.sock"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.History.Path),
	}
	if c.Control.Enabled {
		dirs = append(dirs, filepath.Dir(c.Control.SocketPath))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EmojidDir returns the base data directory.
// Uses platform-specific paths or the EMOJID_DATA_DIR environment override.
func EmojidDir() string {
	if envDir := os.Getenv("EMOJID_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with EMOJID_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	// Engine overrides
	if v := os.Getenv("EMOJID_MARKER"); v != "" {
		c.Engine.Marker = v
	}
	if v := os.Getenv("EMOJID_MATCH_POLICY"); v != "" {
		c.Engine.MatchPolicy = v
	}
	if v := os.Getenv("EMOJID_SETTLE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.SettleDelayMs = n
		}
	}

	// Registry overrides
	if v := os.Getenv("EMOJID_REGISTRY_PATH"); v != "" {
		c.Registry.Path = v
	}

	// Overlay overrides
	if v := os.Getenv("EMOJID_OVERLAY"); v != "" {
		c.Overlay.Backend = v
	}

	// Logging overrides
	if v := os.Getenv("EMOJID_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EMOJID_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Metrics overrides
	if v := os.Getenv("EMOJID_METRICS_ADDR"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.ListenAddr = v
	}

	// History overrides
	if v := os.Getenv("EMOJID_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}

	// Control overrides
	if v := os.Getenv("EMOJID_SOCKET"); v != "" {
		c.Control.SocketPath = v
	}
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
