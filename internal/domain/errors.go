package domain

import (
	"errors"
	"fmt"
	"os"
)

// Category sentinels, combined with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnavailable  = fmt.Errorf("unavailable")
)

// Sentinel errors for the domain layer.
var (
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrNoWorkingDir      = fmt.Errorf("no usable working directory")
	ErrNoCurrentFile     = fmt.Errorf("current file location unavailable")
	ErrInvocationPanic   = fmt.Errorf("invocation panicked")
	ErrStreamInterrupted = fmt.Errorf("output stream interrupted")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Runner.Spawn")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "process", "environment")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SetupError reports that the working directory or environment of an
// invocation could not be resolved. No subprocess is spawned.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// LaunchError reports that the executable could not be started at all
// (not found, not permitted, bad working directory).
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NotFound reports whether the launch failed because the executable is missing.
func (e *LaunchError) NotFound() bool {
	return errors.Is(e.Err, os.ErrNotExist)
}

// TerminationError reports a process that ran and exited with a nonzero status.
type TerminationError struct {
	Status int
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("exit status %d", e.Status)
}

// SignalError reports a process terminated by a signal.
type SignalError struct {
	Signal string // e.g. "killed", "terminated"
	Number int
}

func (e *SignalError) Error() string {
	return "signal: " + e.Signal
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeNoWorkingDir     ErrorCode = "NO_WORKING_DIR"
	CodeNoCurrentFile    ErrorCode = "NO_CURRENT_FILE"
	CodeInvocationPanic  ErrorCode = "INVOCATION_PANIC"
	CodeStreamInterrupt  ErrorCode = "STREAM_INTERRUPTED"
	CodeSetupFailed      ErrorCode = "SETUP_FAILED"
	CodeLaunchFailed     ErrorCode = "LAUNCH_FAILED"
	CodeProcessExited    ErrorCode = "PROCESS_EXITED"
	CodeProcessSignaled  ErrorCode = "PROCESS_SIGNALED"
	CodeEnvFileNotFound  ErrorCode = "ENVIRONMENT_FILE_NOT_FOUND"
	CodeProcessNoWorkDir ErrorCode = "PROCESS_NO_WORKDIR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrInvalidInput:      CodeInvalidInput,
	ErrUnavailable:       CodeUnavailable,
	ErrConfigLoad:        CodeConfigLoad,
	ErrNoWorkingDir:      CodeNoWorkingDir,
	ErrNoCurrentFile:     CodeNoCurrentFile,
	ErrInvocationPanic:   CodeInvocationPanic,
	ErrStreamInterrupted: CodeStreamInterrupt,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"environment": CodeEnvFileNotFound,
	},
	ErrNoWorkingDir: {
		"process": CodeProcessNoWorkDir,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Typed process errors take precedence over the sentinels they wrap.
// Returns CodeUnknown if nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var (
		se  *SetupError
		le  *LaunchError
		te  *TerminationError
		sig *SignalError
	)
	switch {
	case errors.As(err, &te):
		return CodeProcessExited
	case errors.As(err, &sig):
		return CodeProcessSignaled
	case errors.As(err, &le):
		return CodeLaunchFailed
	case errors.As(err, &se):
		return CodeSetupFailed
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
