// Package integration exercises the assembled termrun stack against a real shell.
package integration

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"
)

// Config holds integration test configuration from environment.
type Config struct {
	Shell       string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment.
func LoadConfig() *Config {
	shell := os.Getenv("TERMRUN_TEST_SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return &Config{
		Shell:       shell,
		TestTimeout: 30 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoShell skips the test if the configured shell cannot be executed.
func SkipIfNoShell(t *testing.T, shell string) {
	t.Helper()
	if _, err := exec.LookPath(shell); err != nil {
		t.Skipf("Skipping integration test: shell %s not available", shell)
	}
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
