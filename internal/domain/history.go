package domain

import "context"

// HistoryEditor is the view of a history handed to a Mutate callback.
// It is only valid for the duration of that callback.
type HistoryEditor interface {
	Append(msg Message)
	RemoveLast()
	// PeekLastID returns the ID of the last entry, or false when empty.
	PeekLastID() (string, bool)
}

// History is an ordered, mutable conversation log.
// Mutate calls are serialized: fn runs with exclusive access.
type History interface {
	Mutate(ctx context.Context, fn func(h HistoryEditor))
}

// ReplaceLast removes the last entry when its ID equals msg.ID and then
// appends msg. Entries further back are never touched, so once something
// else has been appended after msg.ID, a fresh copy is appended instead.
func ReplaceLast(h HistoryEditor, msg Message) {
	if id, ok := h.PeekLastID(); ok && msg.ID != "" && id == msg.ID {
		h.RemoveLast()
	}
	h.Append(msg)
}
