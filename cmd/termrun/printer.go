package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"termrun/internal/domain"
)

// entryPrinter writes the growth of the invocation's entry to a terminal.
// Each update carries the whole fenced entry; only the unseen suffix of its
// body is printed.
type entryPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed string
	open    bool
}

func newEntryPrinter(w io.Writer) *entryPrinter {
	return &entryPrinter{w: w}
}

// Update is a terminal.WithUpdateHook callback.
func (p *entryPrinter) Update(msg domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.ID == "" {
		fmt.Fprintf(p.w, "> %s\n", msg.Content)
		return
	}
	body := unfence(msg.Content)
	if !p.open {
		fmt.Fprintln(p.w, "```")
		p.open = true
	}
	if strings.HasPrefix(body, p.printed) {
		io.WriteString(p.w, body[len(p.printed):])
	} else {
		// A rewritten body (trimmed newline, appended marker) is reprinted whole.
		fmt.Fprintf(p.w, "\n%s", body)
	}
	p.printed = body
}

// Finish closes the fenced block.
func (p *entryPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.w, "\n```")
		p.open = false
	}
}

func unfence(content string) string {
	s := strings.TrimPrefix(content, "```\n")
	return strings.TrimSuffix(s, "\n```")
}
