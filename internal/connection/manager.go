// Package connection owns the agent's websocket channel to its backend:
// opening it with a probe and handshake, pumping frames, and reconnecting
// with bounded exponential backoff when it is lost.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/backoff"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/loop"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/metrics"
	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/tracing"
)

// Handler receives connection lifecycle events and inbound frames. All
// methods run on the event loop.
type Handler interface {
	// SocketOpened fires when the socket is up, before the handshake.
	SocketOpened()
	// HandshakeComplete fires once the backend acknowledged HELLO.
	HandshakeComplete()
	HandleMessage(raw []byte)
	// ChannelClosed fires whenever an attempt fails or an open channel is
	// lost or closed. err is ErrClosed for local closes.
	ChannelClosed(err error)
	// ConnectionExhausted fires once when retries run out.
	ConnectionExhausted(failures int, last error)
}

// Config tunes the channel pumps.
type Config struct {
	PingInterval time.Duration // default 30s
	PongWait     time.Duration // default 60s
	WriteWait    time.Duration // default 10s
	SendBuffer   int           // default 256
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// Phase is the manager's coarse lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseRetrying   Phase = "retrying"
	PhaseExhausted  Phase = "exhausted"
	PhaseStopped    Phase = "stopped"
)

// Status is a point-in-time view of the manager.
type Status struct {
	Phase     Phase
	Target    string
	ChannelID string
	Failures  int
	Exhausted bool
	LastError string
}

type attempt struct {
	id     string
	cancel context.CancelFunc
}

// Manager drives one backend channel. Every method must be called from the
// event loop goroutine.
type Manager struct {
	loop      *loop.Loop
	transport Transport
	handler   Handler
	policy    backoff.Policy
	cfg       Config
	metrics   *metrics.Recorder

	target    string
	inflight  *attempt
	ch        *channel
	retry     *loop.Task
	failures  int
	exhausted bool
	stopped   bool
	lastErr   error
}

func NewManager(l *loop.Loop, t Transport, h Handler, policy backoff.Policy, cfg Config, m *metrics.Recorder) *Manager {
	cfg.applyDefaults()
	return &Manager{
		loop:      l,
		transport: t,
		handler:   h,
		policy:    policy,
		cfg:       cfg,
		metrics:   m,
	}
}

// Open starts a non-blocking attempt against target.
func (m *Manager) Open(target string) error {
	switch {
	case m.stopped:
		return ErrStopped
	case m.inflight != nil:
		return ErrAttemptInFlight
	case m.ch != nil:
		return ErrAlreadyOpen
	}
	if _, err := ParseTarget(target); err != nil {
		return err
	}
	m.retry.Cancel()
	m.retry = nil
	m.target = target
	m.begin()
	return nil
}

// Close drops the channel or pending attempt and cancels any scheduled
// retry. It never reconnects.
func (m *Manager) Close(reason string) {
	m.retry.Cancel()
	m.retry = nil
	if m.inflight == nil && m.ch == nil {
		return
	}
	slog.Info("backend: closing channel", "reason", reason, "target", m.target)
	if m.inflight != nil {
		m.inflight.cancel()
		m.inflight = nil
	}
	m.channelClosed(ErrClosed)
}

// Stop closes the channel and refuses all future opens.
func (m *Manager) Stop() {
	if m.stopped {
		return
	}
	m.Close("stopped")
	m.stopped = true
}

// Reconnect closes the current channel, forgets past failures and opens
// target.
func (m *Manager) Reconnect(target string) error {
	if m.stopped {
		return ErrStopped
	}
	if _, err := ParseTarget(target); err != nil {
		return err
	}
	m.Close("reconnect")
	m.failures = 0
	m.exhausted = false
	m.lastErr = nil
	return m.Open(target)
}

// Reconfigure swaps the transport, retry policy and pump settings. The open
// channel keeps what it was built with; the next attempt uses the new ones.
// A nil transport keeps the current one.
func (m *Manager) Reconfigure(t Transport, policy backoff.Policy, cfg Config) {
	if t != nil {
		m.transport = t
	}
	cfg.applyDefaults()
	m.policy = policy
	m.cfg = cfg
}

// Send marshals v and queues it for the writer. Frames are dropped, not
// buffered, while the channel is down.
func (m *Manager) Send(frameType string, v any) error {
	if m.ch == nil {
		m.metrics.Outbound(frameType, "not_connected")
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		m.metrics.Outbound(frameType, "error")
		return fmt.Errorf("marshal %s: %w", frameType, err)
	}
	if !m.ch.enqueue(data) {
		slog.Warn("backend: send buffer full, dropping frame", "type", frameType, "channel", m.ch.id)
		m.metrics.Outbound(frameType, "dropped")
		return ErrSendBufferFull
	}
	m.metrics.Outbound(frameType, "sent")
	return nil
}

// Connected reports whether a handshaken channel is open.
func (m *Manager) Connected() bool { return m.ch != nil }

func (m *Manager) Status() Status {
	s := Status{
		Target:    m.target,
		Failures:  m.failures,
		Exhausted: m.exhausted,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	if m.ch != nil {
		s.ChannelID = m.ch.id
	}
	switch {
	case m.stopped:
		s.Phase = PhaseStopped
	case m.ch != nil:
		s.Phase = PhaseConnected
	case m.inflight != nil:
		s.Phase = PhaseConnecting
	case m.retry.Active():
		s.Phase = PhaseRetrying
	case m.exhausted:
		s.Phase = PhaseExhausted
	default:
		s.Phase = PhaseIdle
	}
	return s
}

// begin launches the dial goroutine. Its results come back through Post and
// are ignored once the attempt is no longer current.
func (m *Manager) begin() {
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{id: uuid.NewString(), cancel: cancel}
	m.inflight = a
	target := m.target
	failures := m.failures
	transport := m.transport

	slog.Info("backend: connecting", "target", target, "attempt", a.id, "failures", failures)

	go func() {
		ctx, span := tracing.Tracer().Start(ctx, "backend.open",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("backend.target", target),
				attribute.String("backend.attempt_id", a.id),
				attribute.Int("backend.failures", failures),
			),
		)
		conn, err := transport.Dial(ctx, target, func() {
			m.loop.Post(func() { m.socketOpened(a) })
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		if !m.loop.Post(func() { m.attemptDone(a, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) socketOpened(a *attempt) {
	if m.inflight != a {
		return
	}
	slog.Debug("backend: socket open, awaiting handshake", "attempt", a.id)
	m.handler.SocketOpened()
}

func (m *Manager) attemptDone(a *attempt, conn Conn, err error) {
	if m.inflight != a {
		if conn != nil {
			conn.Close()
		}
		return
	}
	a.cancel()
	m.inflight = nil

	if err != nil {
		result := string(KindOf(err))
		if result == "" {
			result = string(KindNetwork)
		}
		m.metrics.ConnectAttempt(result)
		slog.Warn("backend: connect failed", "target", m.target, "attempt", a.id, "error", err)
		m.channelClosed(err)
		return
	}

	ch := newChannel(m.target, conn, m.cfg)
	m.ch = ch
	m.failures = 0
	m.exhausted = false
	m.lastErr = nil
	m.metrics.ConnectAttempt("ok")
	m.metrics.BackendConnected(true)

	ch.start(
		func(data []byte) {
			m.loop.Post(func() { m.deliver(ch, data) })
		},
		func(err error) {
			m.loop.Post(func() { m.lost(ch, err) })
		},
	)

	slog.Info("backend: connected", "target", m.target, "channel", ch.id)
	m.handler.HandshakeComplete()
}

func (m *Manager) deliver(ch *channel, data []byte) {
	if m.ch != ch {
		return
	}
	m.handler.HandleMessage(data)
}

func (m *Manager) lost(ch *channel, err error) {
	if m.ch != ch {
		return
	}
	slog.Warn("backend: channel lost", "channel", ch.id, "error", err)
	m.channelClosed(err)
}

// channelClosed is the single place a lost channel or failed attempt is
// handled and the only place a reconnect is scheduled.
func (m *Manager) channelClosed(err error) {
	if m.ch != nil {
		m.ch.close()
		m.ch = nil
	}
	m.metrics.BackendConnected(false)
	m.handler.ChannelClosed(err)

	if errors.Is(err, ErrClosed) || m.stopped {
		return
	}

	m.lastErr = err
	m.failures++
	if !m.policy.ShouldRetry(m.failures) {
		if !m.exhausted {
			m.exhausted = true
			slog.Error("backend: giving up reconnecting",
				"target", m.target, "failures", m.failures, "error", err)
			m.metrics.Exhausted()
			m.handler.ConnectionExhausted(m.failures, err)
		}
		return
	}

	delay := m.policy.DelayFor(m.failures)
	slog.Info("backend: reconnect scheduled", "target", m.target, "failures", m.failures, "delay", delay)
	m.metrics.RetryScheduled()
	m.retry = m.loop.After(delay, m.retryOpen)
}

func (m *Manager) retryOpen() {
	m.retry = nil
	if m.stopped || m.inflight != nil || m.ch != nil {
		return
	}
	m.begin()
}
