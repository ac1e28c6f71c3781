// Package terminal runs shell commands on behalf of a chat session and
// streams their output into a single, evolving history entry.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"termrun/internal/domain"
	"termrun/internal/infra/metrics"
	"termrun/internal/infra/tracer"
	"termrun/internal/usecase/process"
)

const (
	pluginName    = "Terminal"
	pluginCommand = "run"
)

// Spawner starts a process and exposes its combined output.
// *process.Runner satisfies it.
type Spawner interface {
	Spawn(ctx context.Context, spec process.Spec) (*process.Stream, error)
}

// PluginDeps holds the collaborators of a Plugin.
type PluginDeps struct {
	History   domain.History
	Resolver  domain.EnvironmentResolver
	Runner    Spawner
	Shell     string                // default: /bin/bash
	ShellArgs []string              // default: ["-c"]
	Delegate  domain.PluginDelegate // optional, nil = no notifications
	Metrics   *metrics.Recorder     // optional, nil = no metrics
	Logger    *slog.Logger
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithUpdateHook registers fn to receive every entry the plugin writes,
// in write order. fn runs on the goroutine calling Send.
func WithUpdateHook(fn func(domain.Message)) Option {
	return func(p *Plugin) { p.onUpdate = fn }
}

// Plugin is a command session. Each Send runs one command; Cancel stops the
// current invocation and every later one.
type Plugin struct {
	deps     PluginDeps
	onUpdate func(domain.Message)

	cancelled atomic.Bool
	ctx       context.Context // done once Cancel is called
	cancel    context.CancelFunc
}

// NewPlugin creates a Plugin.
func NewPlugin(deps PluginDeps, opts ...Option) *Plugin {
	if deps.Shell == "" {
		deps.Shell = "/bin/bash"
	}
	if deps.ShellArgs == nil {
		deps.ShellArgs = []string{"-c"}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Plugin{deps: deps, ctx: ctx, cancel: cancel}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the plugin's display name.
func (p *Plugin) Name() string { return pluginName }

// Command returns the chat command that routes to this plugin.
func (p *Plugin) Command() string { return pluginCommand }

// Cancel requests cancellation. It never blocks and is idempotent. The
// running subprocess is not killed unless the runner was configured to.
func (p *Plugin) Cancel() {
	if p.cancelled.CompareAndSwap(false, true) {
		p.cancel()
		p.deps.Logger.Info("terminal cancelled")
	}
}

// Cancelled reports whether Cancel has been called.
func (p *Plugin) Cancelled() bool { return p.cancelled.Load() }

// invocation is the mutable state of one Send call.
type invocation struct {
	id        string
	command   string
	workDir   string
	env       map[string]string
	out       strings.Builder
	state     domain.InvocationState
	err       error
	startedAt time.Time
	endedAt   time.Time
	done      bool // terminal entry written and metrics recorded
}

func (inv *invocation) result() domain.InvocationResult {
	return domain.InvocationResult{
		ID:        inv.id,
		Command:   inv.command,
		WorkDir:   inv.workDir,
		State:     inv.state,
		Output:    inv.out.String(),
		Err:       inv.err,
		StartedAt: inv.startedAt,
		EndedAt:   inv.endedAt,
	}
}

// Send runs command through the shell and streams its output into the
// history under a fresh id. It always ends with exactly one terminal entry
// and never returns an error; the outcome is in the returned result.
func (p *Plugin) Send(ctx context.Context, command string) (res domain.InvocationResult) {
	if d := p.deps.Delegate; d != nil {
		d.OnInvocationStart(pluginName)
		defer d.OnInvocationEnd(pluginName)
	}

	inv := &invocation{
		id:        pluginCommand + "-" + uuid.NewString(),
		command:   command,
		state:     domain.InvocationCreated,
		startedAt: time.Now(),
	}

	ctx, span := tracer.StartSpan(ctx, "terminal.send")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("invocation.id", inv.id))

	ctx = domain.ContextWithInvocationID(ctx, inv.id)
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(p.ctx, stop)()

	logger := p.deps.Logger.With("invocation_id", inv.id)
	p.deps.Metrics.Started()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("invocation panicked", "panic", r)
			err := domain.NewDomainError("Plugin.Send", domain.ErrInvocationPanic, fmt.Sprint(r))
			res = p.finishAfterPanic(ctx, inv, err, logger)
		}
		if inv.err != nil {
			tracer.RecordError(span, inv.err)
		} else {
			tracer.SetOK(span)
		}
		span.SetAttributes(tracer.StringAttr("invocation.state", string(inv.state)))
		logger.Info("invocation ended",
			"state", string(inv.state),
			"duration", inv.endedAt.Sub(inv.startedAt),
		)
	}()

	p.write(ctx, domain.Message{Role: domain.RoleUser, Content: "Run command: " + command})

	// A cancel that lands during setup surfaces as a resolver error.
	if err := p.prepare(ctx, inv); err != nil {
		if p.stopped(ctx) {
			return p.finish(ctx, inv, domain.InvocationCancelled, nil)
		}
		logger.Warn("environment setup failed", "error", err)
		return p.finish(ctx, inv, domain.InvocationFailed, err)
	}
	if p.stopped(ctx) {
		return p.finish(ctx, inv, domain.InvocationCancelled, nil)
	}

	args := append(append([]string(nil), p.deps.ShellArgs...), command)
	stream, err := p.deps.Runner.Spawn(ctx, process.Spec{
		Path:        p.deps.Shell,
		Args:        args,
		Dir:         inv.workDir,
		FallbackDir: inv.env["FILE_PATH"],
		Env:         inv.env,
	})
	if err != nil {
		if p.stopped(ctx) {
			return p.finish(ctx, inv, domain.InvocationCancelled, nil)
		}
		logger.Warn("spawn failed", "error", err)
		return p.finish(ctx, inv, domain.InvocationFailed, err)
	}
	defer stream.Close()

	inv.state = domain.InvocationRunning
	logger.Info("invocation running", "command", command, "dir", inv.workDir)

	for {
		chunk, err := stream.Next(ctx)
		// Cancellation wins over whatever the pull produced.
		if p.stopped(ctx) {
			stream.Close()
			return p.finish(ctx, inv, domain.InvocationCancelled, nil)
		}
		if errors.Is(err, io.EOF) {
			return p.finish(ctx, inv, domain.InvocationCompleted, nil)
		}
		if err != nil {
			return p.finish(ctx, inv, domain.InvocationFailed, err)
		}

		p.deps.Metrics.Chunk(len(chunk))
		inv.out.WriteString(chunk)
		p.write(ctx, p.entry(inv, ""))
	}
}

// prepare resolves the working directory and the environment overrides.
func (p *Plugin) prepare(ctx context.Context, inv *invocation) error {
	file, err := p.deps.Resolver.CurrentFileLocation(ctx)
	if err != nil {
		return &domain.SetupError{Op: "resolve current file", Err: err}
	}
	root, ok, err := p.deps.Resolver.ProjectRootFor(ctx, file)
	if err != nil {
		return &domain.SetupError{Op: "resolve project root", Err: err}
	}
	if !ok {
		root = file
	}
	inv.workDir = root
	inv.env = map[string]string{
		"PROJECT_ROOT": root,
		"FILE_PATH":    file,
	}
	return nil
}

func (p *Plugin) stopped(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

// finish performs the terminal write of inv. Only a completed write marks
// inv done, so a write that panics is retried by finishAfterPanic; the
// retry replaces the same tail entry.
func (p *Plugin) finish(ctx context.Context, inv *invocation, state domain.InvocationState, err error) domain.InvocationResult {
	if inv.done {
		return inv.result()
	}
	inv.state = state
	inv.err = err
	inv.endedAt = time.Now()

	// The terminal write must land even when ctx is what ended the run.
	p.write(context.WithoutCancel(ctx), p.entry(inv, marker(state, err)))
	p.record(inv)
	return inv.result()
}

// finishAfterPanic ends inv as Failed. If the terminal write panics again
// the entry is given up on, but the invocation is still recorded as ended.
func (p *Plugin) finishAfterPanic(ctx context.Context, inv *invocation, err error, logger *slog.Logger) (res domain.InvocationResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("terminal write failed", "panic", r)
			p.record(inv)
			res = inv.result()
		}
	}()
	return p.finish(ctx, inv, domain.InvocationFailed, err)
}

func (p *Plugin) record(inv *invocation) {
	if inv.done {
		return
	}
	inv.done = true
	p.deps.Metrics.Finished(inv.state, inv.err, inv.endedAt.Sub(inv.startedAt))
}

func (p *Plugin) entry(inv *invocation, mark string) domain.Message {
	return domain.Message{
		ID:      inv.id,
		Role:    domain.RoleAssistant,
		Content: Render(inv.out.String(), mark),
	}
}

// write replaces this invocation's entry when it is still last in the
// history and appends otherwise.
func (p *Plugin) write(ctx context.Context, msg domain.Message) {
	p.deps.History.Mutate(ctx, func(h domain.HistoryEditor) {
		if msg.ID == "" {
			h.Append(msg)
			return
		}
		domain.ReplaceLast(h, msg)
	})
	if p.onUpdate != nil {
		p.onUpdate(msg)
	}
}
