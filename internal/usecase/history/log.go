// Package history provides an in-memory conversation log that satisfies
// domain.History.
package history

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"termrun/internal/domain"
)

// Log is an ordered, mutex-guarded message history. Entries carrying an ID
// are indexed so they can be looked up without scanning.
type Log struct {
	mu        sync.RWMutex
	id        string
	msgs      []domain.Message
	positions map[string][]int // message ID -> indexes into msgs, ascending
	updatedAt time.Time
	bus       domain.EventBus
}

// New creates an empty Log with a generated ULID. bus may be nil.
func New(bus domain.EventBus) *Log {
	now := time.Now()
	return &Log{
		id:        generateULID(now),
		msgs:      make([]domain.Message, 0),
		positions: make(map[string][]int),
		updatedAt: now,
		bus:       bus,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ID returns the log's session ID.
func (l *Log) ID() string { return l.id }

// Mutate runs fn with exclusive access to the log. After fn returns, an
// EventHistoryUpdated event carrying the new length is published.
func (l *Log) Mutate(ctx context.Context, fn func(h domain.HistoryEditor)) {
	l.mu.Lock()
	fn(editor{l})
	l.updatedAt = time.Now()
	n := len(l.msgs)
	l.mu.Unlock()

	l.publish(ctx, n)
}

// Append adds a single message; shorthand for a one-step Mutate.
func (l *Log) Append(ctx context.Context, msg domain.Message) {
	l.Mutate(ctx, func(h domain.HistoryEditor) { h.Append(msg) })
}

// Messages returns a copy of the history.
func (l *Log) Messages() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]domain.Message, len(l.msgs))
	copy(cp, l.msgs)
	return cp
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Lookup returns the most recent entry with the given ID.
func (l *Log) Lookup(id string) (domain.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos := l.positions[id]
	if len(pos) == 0 {
		return domain.Message{}, false
	}
	return l.msgs[pos[len(pos)-1]], true
}

// Count returns how many entries carry the given ID.
func (l *Log) Count(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions[id])
}

// UpdatedAt returns the time of the last mutation.
func (l *Log) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

// MarshalJSON renders the log as {"id": ..., "messages": [...]}.
func (l *Log) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(struct {
		ID        string           `json:"id"`
		Messages  []domain.Message `json:"messages"`
		UpdatedAt time.Time        `json:"updated_at"`
	}{l.id, l.msgs, l.updatedAt})
}

func (l *Log) publish(ctx context.Context, n int) {
	if l.bus == nil {
		return
	}
	data, _ := json.Marshal(map[string]int{"len": n})
	l.bus.Publish(ctx, domain.Event{
		Type:      domain.EventHistoryUpdated,
		Timestamp: time.Now(),
		SessionID: l.id,
		Payload:   data,
	})
}

// editor is the domain.HistoryEditor handed to Mutate callbacks. It must
// only be used while l.mu is held.
type editor struct{ l *Log }

func (e editor) Append(msg domain.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.ID != "" {
		e.l.positions[msg.ID] = append(e.l.positions[msg.ID], len(e.l.msgs))
	}
	e.l.msgs = append(e.l.msgs, msg)
}

func (e editor) RemoveLast() {
	n := len(e.l.msgs)
	if n == 0 {
		return
	}
	last := e.l.msgs[n-1]
	if last.ID != "" {
		pos := e.l.positions[last.ID]
		if len(pos) <= 1 {
			delete(e.l.positions, last.ID)
		} else {
			e.l.positions[last.ID] = pos[:len(pos)-1]
		}
	}
	e.l.msgs = e.l.msgs[:n-1]
}

func (e editor) PeekLastID() (string, bool) {
	n := len(e.l.msgs)
	if n == 0 {
		return "", false
	}
	return e.l.msgs[n-1].ID, true
}
