package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"termrun/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Terminal.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want %q", cfg.Terminal.Shell, "/bin/bash")
	}
	if len(cfg.Terminal.ShellArgs) != 1 || cfg.Terminal.ShellArgs[0] != "-c" {
		t.Errorf("ShellArgs = %v, want [-c]", cfg.Terminal.ShellArgs)
	}
	if cfg.Terminal.KillOnCancel {
		t.Error("KillOnCancel should default to false")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminal.ReadBufferSize != 4096 {
		t.Errorf("expected defaults, got ReadBufferSize=%d", cfg.Terminal.ReadBufferSize)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
terminal:
  shell: "/bin/sh"
  kill_on_cancel: true
  read_buffer_size: 512
environment:
  file_path: "/tmp/project/main.go"
  project_markers: ["go.mod"]
logger:
  level: "debug"
  format: "json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminal.Shell != "/bin/sh" {
		t.Errorf("Shell = %q, want %q", cfg.Terminal.Shell, "/bin/sh")
	}
	if !cfg.Terminal.KillOnCancel {
		t.Error("KillOnCancel = false, want true")
	}
	if cfg.Terminal.ReadBufferSize != 512 {
		t.Errorf("ReadBufferSize = %d, want 512", cfg.Terminal.ReadBufferSize)
	}
	// Untouched keys keep their defaults.
	if len(cfg.Terminal.ShellArgs) != 1 || cfg.Terminal.ShellArgs[0] != "-c" {
		t.Errorf("ShellArgs = %v, want [-c]", cfg.Terminal.ShellArgs)
	}
	if cfg.Environment.FilePath != "/tmp/project/main.go" {
		t.Errorf("FilePath = %q", cfg.Environment.FilePath)
	}
	if len(cfg.Environment.ProjectMarkers) != 1 || cfg.Environment.ProjectMarkers[0] != "go.mod" {
		t.Errorf("ProjectMarkers = %v", cfg.Environment.ProjectMarkers)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Logger.Format = %q, want json", cfg.Logger.Format)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("terminal: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TERMRUN_TERMINAL_SHELL", "/bin/zsh")
	t.Setenv("TERMRUN_TERMINAL_SHELL_ARGS", "-l -c")
	t.Setenv("TERMRUN_TERMINAL_KILL_ON_CANCEL", "true")
	t.Setenv("TERMRUN_TERMINAL_READ_BUFFER_SIZE", "1024")
	t.Setenv("TERMRUN_ENVIRONMENT_PROJECT_MARKERS", " .git , package.json ,")
	t.Setenv("TERMRUN_LOGGER_LEVEL", "debug")
	t.Setenv("TERMRUN_METRICS_ENABLED", "true")
	t.Setenv("TERMRUN_METRICS_ADDR", "127.0.0.1:9999")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Terminal.Shell != "/bin/zsh" {
		t.Errorf("Shell = %q", cfg.Terminal.Shell)
	}
	if len(cfg.Terminal.ShellArgs) != 2 || cfg.Terminal.ShellArgs[0] != "-l" {
		t.Errorf("ShellArgs = %v", cfg.Terminal.ShellArgs)
	}
	if !cfg.Terminal.KillOnCancel {
		t.Error("KillOnCancel should be true")
	}
	if cfg.Terminal.ReadBufferSize != 1024 {
		t.Errorf("ReadBufferSize = %d", cfg.Terminal.ReadBufferSize)
	}
	if got := cfg.Environment.ProjectMarkers; len(got) != 2 || got[0] != ".git" || got[1] != "package.json" {
		t.Errorf("ProjectMarkers = %v", got)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9999" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverrideIgnoresBadBufferSize(t *testing.T) {
	t.Setenv("TERMRUN_TERMINAL_READ_BUFFER_SIZE", "-5")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Terminal.ReadBufferSize != 4096 {
		t.Errorf("ReadBufferSize = %d, want 4096", cfg.Terminal.ReadBufferSize)
	}
}
