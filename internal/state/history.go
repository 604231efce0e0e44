package state

import (
	"sync"
	"time"
)

// ChatEntry is one human-originated chat line.
type ChatEntry struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// ChatHistory is an append-only, insertion-ordered chat log. Entries are
// never reordered or edited; truncation is left to consumers.
type ChatHistory struct {
	mu      sync.RWMutex
	entries []ChatEntry
}

// NewChatHistory creates an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{}
}

// Append adds an entry at the end.
func (h *ChatHistory) Append(e ChatEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Len returns the number of entries.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of all entries in insertion order.
func (h *ChatHistory) Entries() []ChatEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return nil
	}
	out := make([]ChatEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns up to n most recent entries, oldest first.
func (h *ChatHistory) Last(n int) []ChatEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]ChatEntry, len(h.entries)-start)
	copy(out, h.entries[start:])
	return out
}
