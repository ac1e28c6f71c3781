package terminal

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termrun/internal/domain"
	"termrun/internal/usecase/history"
	"termrun/internal/usecase/process"
)

func requireBash(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	return path
}

type shellHarness struct {
	plugin  *Plugin
	log     *history.Log
	root    string
	updates chan domain.Message
}

func newShellHarness(t *testing.T, shell string) *shellHarness {
	t.Helper()
	root := t.TempDir()
	file := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0o644))

	h := &shellHarness{
		log:     history.New(nil),
		root:    root,
		updates: make(chan domain.Message, 256),
	}
	h.plugin = NewPlugin(PluginDeps{
		History:  h.log,
		Resolver: fakeResolver{file: file, root: root, hasRoot: true},
		Runner:   process.NewRunner(process.RunnerConfig{}, nil),
		Shell:    shell,
	}, WithUpdateHook(func(m domain.Message) {
		select {
		case h.updates <- m:
		default:
		}
	}))
	return h
}

func TestShellEchoHello(t *testing.T) {
	h := newShellHarness(t, requireBash(t))

	res := h.plugin.Send(context.Background(), "echo hello")

	require.Equal(t, domain.InvocationCompleted, res.State, "err: %v", res.Err)
	last, ok := h.log.Lookup(res.ID)
	require.True(t, ok)
	assert.Equal(t, "```\nhello\n[finished]\n```", last.Content)
}

func TestShellExitStatus(t *testing.T) {
	h := newShellHarness(t, requireBash(t))

	res := h.plugin.Send(context.Background(), "printf boom; exit 2")

	require.Equal(t, domain.InvocationFailed, res.State)
	last, _ := h.log.Lookup(res.ID)
	assert.Equal(t, "```\nboom\n[error: 2]\n```", last.Content)
	assert.Equal(t, domain.CodeProcessExited, domain.ErrorCodeOf(res.Err))
}

func TestShellStderrIsCaptured(t *testing.T) {
	h := newShellHarness(t, requireBash(t))

	res := h.plugin.Send(context.Background(), "echo out; echo err >&2")

	require.Equal(t, domain.InvocationCompleted, res.State)
	assert.Contains(t, res.Output, "out\n")
	assert.Contains(t, res.Output, "err\n")
}

func TestShellEnvironmentAndDir(t *testing.T) {
	h := newShellHarness(t, requireBash(t))

	res := h.plugin.Send(context.Background(), `printf '%s|%s|%s' "$PROJECT_ROOT" "$(basename "$FILE_PATH")" "$PWD"`)

	require.Equal(t, domain.InvocationCompleted, res.State, "err: %v", res.Err)
	parts := strings.Split(res.Output, "|")
	require.Len(t, parts, 3)
	assert.Equal(t, h.root, parts[0])
	assert.Equal(t, "main.go", parts[1])

	want, err := filepath.EvalSymlinks(h.root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(parts[2])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShellCancelDuringSleep(t *testing.T) {
	h := newShellHarness(t, requireBash(t))
	done := sendAsync(context.Background(), h.plugin, "echo started; sleep 5 && echo done")

	deadline := time.After(5 * time.Second)
	for waiting := true; waiting; {
		select {
		case m := <-h.updates:
			waiting = m.ID == ""
		case <-deadline:
			t.Fatal("no output before cancel")
		}
	}

	start := time.Now()
	h.plugin.Cancel()
	res := waitResult(t, done)

	assert.Less(t, time.Since(start), 4*time.Second, "Send must not wait for the process")
	assert.Equal(t, domain.InvocationCancelled, res.State)
	last, _ := h.log.Lookup(res.ID)
	assert.Equal(t, "```\nstarted\n[cancelled]\n```", last.Content)
	assert.NotContains(t, last.Content, "done")
}

func TestShellLaunchFailure(t *testing.T) {
	h := newShellHarness(t, filepath.Join(t.TempDir(), "no-such-shell"))

	res := h.plugin.Send(context.Background(), "echo hi")

	require.Equal(t, domain.InvocationFailed, res.State)
	var le *domain.LaunchError
	require.ErrorAs(t, res.Err, &le)
	assert.True(t, le.NotFound())
	last, _ := h.log.Lookup(res.ID)
	assert.Contains(t, last.Content, "[error: launch ")
	assert.Equal(t, 1, h.log.Count(res.ID))
}
