// Package chat carries world chat to the agent.
package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Record is one chat line as the world delivers it.
type Record struct {
	From   string `json:"from"`
	FromID string `json:"fromId"`
	Body   string `json:"body"`
}

// Feed is a source of chat records. The returned channel is closed when ctx
// ends or the feed shuts down.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Record, error)
}

// Hub is an in-process Feed that fans published records out to every
// subscriber.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]chan Record
	closed bool
	done   chan struct{}
}

// NewHub creates a hub whose subscriber channels hold buffer records.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, subs: make(map[string]chan Record), done: make(chan struct{})}
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	id := uuid.NewString()
	ch := make(chan Record, h.buffer)
	h.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(id)
		case <-h.done:
		}
	}()
	return ch, nil
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers rec to every subscriber without blocking and returns how
// many received it.
func (h *Hub) Publish(rec Record) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for id, ch := range h.subs {
		select {
		case ch <- rec:
			n++
		default:
			slog.Warn("chat: subscriber buffer full, dropping record", "subscriber", id, "from", rec.FromID)
		}
	}
	return n
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
