// Package router dispatches inbound backend frames to typed handlers.
package router

import (
	"fmt"
	"log/slog"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/metrics"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// Handlers receives routed frames. Each method runs on the caller's
// goroutine (the agent event loop).
type Handlers interface {
	HandleStateUpdate(msg *protocol.StateUpdate)
	HandleAudio(msg *protocol.Audio)
	HandleBrowserContent(msg *protocol.BrowserContent)
	HandlePhysicsUpdate(msg *protocol.PhysicsUpdate)
}

// Drop reasons recorded in metrics.
const (
	DropMalformed    = "malformed"
	DropUnknownType  = "unknown_type"
	DropHandlerPanic = "handler_panic"
)

// Router maps inbound frame types to Handlers.
type Router struct {
	handlers Handlers
	metrics  *metrics.Recorder
}

func New(h Handlers, m *metrics.Recorder) *Router {
	return &Router{handlers: h, metrics: m}
}

// Route decodes and dispatches one raw frame. It never panics or returns an
// error; anything it cannot route is logged and dropped.
func (r *Router) Route(raw []byte) {
	msg, err := protocol.ParseInbound(raw)
	if err != nil {
		slog.Warn("router: dropping malformed frame", "error", err, "bytes", len(raw))
		r.metrics.MessageDropped(DropMalformed)
		return
	}
	r.Dispatch(msg)
}

// Dispatch delivers an already decoded frame.
func (r *Router) Dispatch(msg protocol.Inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("router: handler panicked", "type", msg.FrameType(), "panic", fmt.Sprint(rec))
			r.metrics.MessageDropped(DropHandlerPanic)
		}
	}()

	switch m := msg.(type) {
	case *protocol.StateUpdate:
		r.handlers.HandleStateUpdate(m)
	case *protocol.Audio:
		r.handlers.HandleAudio(m)
	case *protocol.BrowserContent:
		r.handlers.HandleBrowserContent(m)
	case *protocol.PhysicsUpdate:
		r.handlers.HandlePhysicsUpdate(m)
	case *protocol.Unrecognized:
		if m.Type == protocol.TypeError {
			slog.Warn("router: backend reported error", "raw", string(m.Raw))
		} else {
			slog.Debug("router: unknown message type", "type", m.Type)
		}
		r.metrics.MessageDropped(DropUnknownType)
		return
	default:
		slog.Debug("router: unhandled frame", "type", msg.FrameType())
		r.metrics.MessageDropped(DropUnknownType)
		return
	}
	r.metrics.MessageRouted(msg.FrameType())
}
