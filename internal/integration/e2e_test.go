package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termrun/internal/adapter/environment"
	"termrun/internal/domain"
	"termrun/internal/infra/metrics"
	"termrun/internal/usecase/eventbus"
	"termrun/internal/usecase/history"
	"termrun/internal/usecase/process"
	"termrun/internal/usecase/terminal"
)

type stack struct {
	plugin  *terminal.Plugin
	log     *history.Log
	bus     *eventbus.Bus
	metrics *metrics.Recorder
	project string

	mu     sync.Mutex
	events []domain.EventType
}

func (s *stack) eventTypes() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EventType(nil), s.events...)
}

// newStack wires the same components as cmd/termrun inside a temporary
// Go project.
func newStack(t *testing.T, cfg *Config) *stack {
	t.Helper()
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "go.mod"), []byte("module demo\n"), 0o644))
	pkg := filepath.Join(project, "pkg")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	file := filepath.Join(pkg, "demo.go")
	require.NoError(t, os.WriteFile(file, []byte("package pkg\n"), 0o644))

	s := &stack{bus: eventbus.New(nil), metrics: metrics.New(), project: project}
	s.bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		s.mu.Lock()
		s.events = append(s.events, e.Type)
		s.mu.Unlock()
	})
	s.log = history.New(s.bus)
	s.plugin = terminal.NewPlugin(terminal.PluginDeps{
		History:  s.log,
		Resolver: environment.NewResolver(file),
		Runner:   process.NewRunner(process.RunnerConfig{}, nil),
		Shell:    cfg.Shell,
		Delegate: terminal.NewBusDelegate(s.bus, s.log.ID(), nil),
		Metrics:  s.metrics,
	})
	return s
}

func TestE2E_RunInProjectRoot(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoShell(t, cfg.Shell)
	s := newStack(t, cfg)
	ctx := NewTestContext(t, cfg.TestTimeout)

	res := s.plugin.Send(ctx, `ls; printf 'root=%s\n' "$PROJECT_ROOT"`)
	s.bus.Close()

	require.Equal(t, domain.InvocationCompleted, res.State, "err: %v", res.Err)
	assert.Contains(t, res.Output, "go.mod")
	assert.Contains(t, res.Output, "root="+s.project)

	last, ok := s.log.Lookup(res.ID)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(last.Content, "\n[finished]\n```"), last.Content)

	types := s.eventTypes()
	assert.Contains(t, types, domain.EventPluginStarted)
	assert.Contains(t, types, domain.EventPluginEnded)
	assert.Contains(t, types, domain.EventHistoryUpdated)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.InvocationsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.ActiveInvocations))
}

func TestE2E_FailureThenCancelledSession(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoShell(t, cfg.Shell)
	s := newStack(t, cfg)
	ctx := NewTestContext(t, cfg.TestTimeout)

	failed := s.plugin.Send(ctx, "echo oops >&2; exit 4")
	require.Equal(t, domain.InvocationFailed, failed.State)
	last, _ := s.log.Lookup(failed.ID)
	assert.Equal(t, "```\noops\n[error: 4]\n```", last.Content)

	s.plugin.Cancel()
	after := s.plugin.Send(ctx, "echo never")
	s.bus.Close()

	assert.Equal(t, domain.InvocationCancelled, after.State)
	assert.Empty(t, after.Output)

	msgs := s.log.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Run command: echo never", msgs[2].Content)
	assert.Equal(t, "```\n\n[cancelled]\n```", msgs[3].Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ErrorsTotal.WithLabelValues(string(domain.CodeProcessExited))))
}

func TestE2E_ManyChunks(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoShell(t, cfg.Shell)
	if cfg.SkipSlow {
		t.Skip("slow test")
	}
	s := newStack(t, cfg)
	ctx := NewTestContext(t, cfg.TestTimeout)

	res := s.plugin.Send(ctx, "for i in $(seq 1 200); do echo line $i; sleep 0.001; done")
	s.bus.Close()

	require.Equal(t, domain.InvocationCompleted, res.State)
	assert.Equal(t, 200, strings.Count(res.Output, "line "))
	assert.Equal(t, 1, s.log.Count(res.ID))
	assert.Equal(t, 2, s.log.Len())
}
