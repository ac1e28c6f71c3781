package terminal

import (
	"errors"
	"strconv"
	"strings"

	"termrun/internal/domain"
)

// In-band markers closing an entry.
const (
	MarkerFinished  = "[finished]"
	MarkerCancelled = "[cancelled]"
)

const fenceDelim = "```"

// Render formats accumulated output as a fenced block. One trailing newline
// of output is dropped; mark, when set, goes on its own line at the end.
func Render(output, mark string) string {
	body := strings.TrimSuffix(output, "\n")
	if mark != "" {
		body += "\n" + mark
	}
	return fenceDelim + "\n" + body + "\n" + fenceDelim
}

// ErrorMarker describes err for the closing line of a failed entry.
// A nonzero exit is reported by its bare status.
func ErrorMarker(err error) string {
	var te *domain.TerminationError
	if errors.As(err, &te) {
		return "[error: " + strconv.Itoa(te.Status) + "]"
	}
	if err == nil {
		return "[error: unknown]"
	}
	return "[error: " + err.Error() + "]"
}

func marker(state domain.InvocationState, err error) string {
	switch state {
	case domain.InvocationCompleted:
		return MarkerFinished
	case domain.InvocationCancelled:
		return MarkerCancelled
	case domain.InvocationFailed:
		return ErrorMarker(err)
	}
	return ""
}
