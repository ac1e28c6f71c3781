package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"termrun/internal/domain"
	"termrun/internal/infra/tracer"
)

// DefaultReadBufferSize is the max bytes read per output chunk when unset.
const DefaultReadBufferSize = 4096

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	ReadBufferSize int  // max bytes per chunk (default: 4096)
	KillOnCancel   bool // kill the process group when its stream is abandoned (default: let it finish)
}

// Spec describes one process launch.
type Spec struct {
	Path        string
	Args        []string
	Dir         string            // preferred working directory
	FallbackDir string            // used when Dir is unusable; a file path means its parent
	Env         map[string]string // merged over the inherited environment
}

// Runner spawns processes whose combined output is exposed as a Stream.
type Runner struct {
	config RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{config: cfg, logger: logger}
}

// Spawn starts spec.Path with stdout and stderr sharing a single pipe.
//
// Errors are a *domain.SetupError when no working directory can be
// resolved and a *domain.LaunchError when the process cannot be started.
// Exit failures surface later, from Stream.Next.
func (r *Runner) Spawn(ctx context.Context, spec Spec) (*Stream, error) {
	_, span := tracer.StartSpan(ctx, "process.spawn")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("process.path", spec.Path))

	dir, err := resolveDir(spec.Dir, spec.FallbackDir)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, &domain.SetupError{Op: "Runner.Spawn", Err: err}
	}

	// Not CommandContext: a cancelled invocation leaves the process running
	// unless KillOnCancel is set.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	if r.config.KillOnCancel {
		setProcessGroup(cmd)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		tracer.RecordError(span, err)
		return nil, &domain.LaunchError{Path: spec.Path, Err: fmt.Errorf("output pipe: %w", err)}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		tracer.RecordError(span, err)
		return nil, &domain.LaunchError{Path: spec.Path, Err: err}
	}
	// The child holds its own copy of the write end; ours must go so EOF arrives.
	pw.Close()

	pid := cmd.Process.Pid
	span.SetAttributes(tracer.IntAttr("process.pid", pid))
	r.logger.Debug("process started", "pid", pid, "path", spec.Path, "dir", dir)

	wait := func() error {
		err := classifyExit(cmd.Wait())
		r.logger.Debug("process exited", "pid", pid, "error", err)
		return err
	}
	var kill func()
	if r.config.KillOnCancel {
		kill = func() {
			if err := killProcessGroup(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				r.logger.Warn("kill abandoned process", "pid", pid, "error", err)
			}
		}
	}

	return newStream(pr, wait, kill, r.config.ReadBufferSize, r.logger), nil
}

// resolveDir picks dir when it is an existing directory, otherwise fallback
// (or fallback's parent when fallback is a file). Both empty means inherit.
func resolveDir(dir, fallback string) (string, error) {
	if dir == "" && fallback == "" {
		return "", nil
	}
	if isDir(dir) {
		return dir, nil
	}
	if fallback != "" {
		if isDir(fallback) {
			return fallback, nil
		}
		if parent := filepath.Dir(fallback); isDir(parent) {
			return parent, nil
		}
	}
	return "", domain.NewSubSystemError("process", "Runner.Spawn", domain.ErrNoWorkingDir,
		fmt.Sprintf("dir %q, fallback %q", dir, fallback))
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// mergeEnv overlays overrides onto base (KEY=VALUE entries). Overridden
// keys are dropped from base and re-added in sorted order.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// classifyExit maps cmd.Wait errors onto the domain's termination errors.
func classifyExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if sig, ok := signalOf(exitErr.ProcessState); ok {
		return &domain.SignalError{Signal: sig.String(), Number: int(sig)}
	}
	return &domain.TerminationError{Status: exitErr.ExitCode()}
}
