package domain

import (
	"context"
	"time"
)

// InvocationState represents the lifecycle state of a command invocation.
type InvocationState string

const (
	InvocationCreated   InvocationState = "created"
	InvocationRunning   InvocationState = "running"
	InvocationCompleted InvocationState = "completed"
	InvocationFailed    InvocationState = "failed"
	InvocationCancelled InvocationState = "cancelled"
)

// Terminal reports whether no further transitions can happen from s.
func (s InvocationState) Terminal() bool {
	switch s {
	case InvocationCompleted, InvocationFailed, InvocationCancelled:
		return true
	}
	return false
}

// InvocationResult is the terminal snapshot of one command invocation.
type InvocationResult struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	WorkDir   string          `json:"workdir,omitempty"`
	State     InvocationState `json:"state"`
	Output    string          `json:"output"`
	Err       error           `json:"-"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
}

// PluginDelegate is notified when a chat plugin starts and finishes work.
type PluginDelegate interface {
	OnInvocationStart(pluginID string)
	OnInvocationEnd(pluginID string)
}

// EnvironmentResolver locates the file the user is working on and its project.
type EnvironmentResolver interface {
	CurrentFileLocation(ctx context.Context) (string, error)
	// ProjectRootFor returns the project root enclosing path, or false if
	// path is not inside a recognizable project.
	ProjectRootFor(ctx context.Context, path string) (string, bool, error)
}
