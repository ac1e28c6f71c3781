package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"termrun/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Terminal    TerminalConfig    `yaml:"terminal"`
	Environment EnvironmentConfig `yaml:"environment"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// TerminalConfig holds settings for running commands.
type TerminalConfig struct {
	Shell          string   `yaml:"shell"`            // executable the command text is handed to
	ShellArgs      []string `yaml:"shell_args"`       // arguments placed before the command text
	KillOnCancel   bool     `yaml:"kill_on_cancel"`   // false = let cancelled commands run to completion
	ReadBufferSize int      `yaml:"read_buffer_size"` // max bytes per output chunk
}

// EnvironmentConfig controls how the working directory is discovered.
type EnvironmentConfig struct {
	FilePath       string   `yaml:"file_path"`       // "current file"; empty = process working directory
	ProjectMarkers []string `yaml:"project_markers"` // entries whose presence marks a project root
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	RatePerMin int    `yaml:"rate_per_min"` // scrapes per minute per client host
	RateBurst  int    `yaml:"rate_burst"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Terminal: TerminalConfig{
			Shell:          "/bin/bash",
			ShellArgs:      []string{"-c"},
			KillOnCancel:   false,
			ReadBufferSize: 4096,
		},
		Environment: EnvironmentConfig{
			ProjectMarkers: []string{".git", "go.mod", ".hg", ".svn"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Addr:       ":9464",
			RatePerMin: 120,
			RateBurst:  20,
		},
	}
}

// Load reads a YAML config file, applies env var overrides and validates the result.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfigLoad, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfigLoad, err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TERMRUN_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TERMRUN_TERMINAL_SHELL"); v != "" {
		cfg.Terminal.Shell = v
	}
	if v := os.Getenv("TERMRUN_TERMINAL_SHELL_ARGS"); v != "" {
		cfg.Terminal.ShellArgs = strings.Fields(v)
	}
	if v := os.Getenv("TERMRUN_TERMINAL_KILL_ON_CANCEL"); v == "true" {
		cfg.Terminal.KillOnCancel = true
	} else if v == "false" {
		cfg.Terminal.KillOnCancel = false
	}
	if v := os.Getenv("TERMRUN_TERMINAL_READ_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Terminal.ReadBufferSize = n
		}
	}

	if v := os.Getenv("TERMRUN_ENVIRONMENT_FILE_PATH"); v != "" {
		cfg.Environment.FilePath = v
	}
	if v := os.Getenv("TERMRUN_ENVIRONMENT_PROJECT_MARKERS"); v != "" {
		cfg.Environment.ProjectMarkers = splitAndTrim(v, ",")
	}

	if v := os.Getenv("TERMRUN_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TERMRUN_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TERMRUN_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}

	if v := os.Getenv("TERMRUN_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TERMRUN_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	if v := os.Getenv("TERMRUN_METRICS_ENABLED"); v == "true" {
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("TERMRUN_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("TERMRUN_METRICS_RATE_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.RatePerMin = n
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
