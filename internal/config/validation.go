package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivo/uniseg"

	"emojid/internal/keystroke"
	"emojid/internal/matcher"
	"emojid/internal/overlay"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig validates c. Warnings alone don't fail validation;
// use Check to see them.
func ValidateConfig(c *Config) error {
	errs := Check(c)
	if errs.HasErrors() {
		return errs.Errors()
	}
	return nil
}

// Check returns every validation finding, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateKeybindings(c.Keybindings)...)
	errs = append(errs, validateRegistry(&c.Registry)...)
	errs = append(errs, validateOverlay(&c.Overlay)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateHistory(&c.History)...)
	errs = append(errs, validateControl(&c.Control)...)
	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.BufferCapacity < 2 || e.BufferCapacity > 1000 {
		errs = append(errs, *RangeError("engine.buffer_capacity", 2, 1000))
	}
	if e.CandidateLimit < 1 || e.CandidateLimit > 100 {
		errs = append(errs, *RangeError("engine.candidate_limit", 1, 100))
	}
	if uniseg.GraphemeClusterCount(e.Marker) != 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.marker",
			Message: fmt.Sprintf("marker must be a single character, got %q", e.Marker),
		})
	} else if strings.TrimSpace(e.Marker) == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.marker",
			Message: "marker cannot be whitespace",
		})
	}
	if _, err := matcher.ParsePolicy(e.MatchPolicy); err != nil {
		errs = append(errs, ValidationError{Field: "engine.match_policy", Message: err.Error()})
	}
	if e.SettleDelayMs < 0 || e.SettleDelayMs > 5000 {
		errs = append(errs, *RangeError("engine.settle_delay_ms", 0, 5000))
	}
	if e.EventQueueSize < 1 || e.EventQueueSize > 65536 {
		errs = append(errs, *RangeError("engine.event_queue_size", 1, 65536))
	}
	if e.DecisionTimeoutMs < 1 || e.DecisionTimeoutMs > 1000 {
		errs = append(errs, *RangeError("engine.decision_timeout_ms", 1, 1000))
	}
	if e.PermissionPollSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.permission_poll_sec",
			Message: "poll interval must be at least 1 second",
		})
	}
	return errs
}

func validateKeybindings(bs keystroke.Bindings) ValidationErrors {
	var errs ValidationErrors
	if err := bs.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "keybindings", Message: err.Error()})
	}
	if bs.Accept.IsZero() && bs.AcceptAlt.IsZero() {
		errs = append(errs, ValidationError{
			Field:   "keybindings.accept",
			Message: "no accept binding; candidates can only be completed by typing them",
		})
	}
	return errs
}

func validateRegistry(r *RegistryConfig) ValidationErrors {
	var errs ValidationErrors

	if r.Path == "" && !r.IncludeBuiltin {
		errs = append(errs, ValidationError{
			Field:   "registry",
			Message: "no shortcuts: set registry.path or include_builtin",
		})
	}
	if r.Path != "" {
		path := expandPath(r.Path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml", ".json", ".yaml", ".yml":
		default:
			errs = append(errs, ValidationError{
				Field:   "registry.path",
				Message: fmt.Sprintf("unsupported table format %q", filepath.Ext(path)),
			})
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, ValidationError{
				Field:   "registry.path",
				Message: fmt.Sprintf("table not found: %s", path),
			})
		}
	}
	return errs
}

func validateOverlay(o *OverlayConfig) ValidationErrors {
	if _, err := overlay.ParseBackend(o.Backend); err != nil {
		return ValidationErrors{{Field: "overlay.backend", Message: err.Error()}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		return ValidationErrors{{
			Field:   "metrics.listen_addr",
			Message: fmt.Sprintf("invalid address %q: %v", m.ListenAddr, err),
		}}
	}
	return nil
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors
	if h.Enabled && h.Path == "" {
		errs = append(errs, *RequiredFieldError("history.path"))
	}
	if h.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.retention_days",
			Message: "retention cannot be negative",
		})
	}
	return errs
}

func validateControl(ctl *ControlConfig) ValidationErrors {
	if ctl.Enabled && ctl.SocketPath == "" {
		return ValidationErrors{*RequiredFieldError("control.socket_path")}
	}
	return nil
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"registry.path",      // table may be created later; built-ins still load
		"keybindings.accept", // usable, just inconvenient
	}
	for _, f := range warningFields {
		if e.Field == f && !strings.HasPrefix(e.Message, "unsupported") {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
