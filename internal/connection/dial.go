package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultProbeTimeout     = 3 * time.Second
)

// Conn is the subset of *websocket.Conn the manager drives.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Transport opens a handshaken channel. opened is invoked once the socket
// itself is up, before the application handshake completes.
type Transport interface {
	Dial(ctx context.Context, target string, opened func()) (Conn, error)
}

// DialerConfig controls probe, dial and handshake.
type DialerConfig struct {
	AgentID string
	Name    string

	HandshakeTimeout time.Duration // whole open window, default 30s
	RequireAck       bool          // wait for CONNECTED after HELLO

	Probe             bool          // probe loopback backends before dialing
	ProbeShortCircuit bool          // a failed probe fails the attempt
	ProbeTimeout      time.Duration // default 3s

	Header http.Header
}

// Dialer is the websocket Transport.
type Dialer struct {
	cfg  DialerConfig
	ws   *websocket.Dialer
	http *http.Client
}

func NewDialer(cfg DialerConfig) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		http: &http.Client{Timeout: cfg.ProbeTimeout},
	}
}

// ParseTarget validates a backend websocket URL.
func ParseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Kind: KindInvalidTarget, Target: target, Err: err}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &Error{Kind: KindInvalidTarget, Target: target, Err: fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &Error{Kind: KindInvalidTarget, Target: target, Err: errors.New("missing host")}
	}
	return u, nil
}

// Dial probes (loopback only), dials and performs the HELLO handshake, all
// within HandshakeTimeout.
func (d *Dialer) Dial(ctx context.Context, target string, opened func()) (Conn, error) {
	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()

	if d.cfg.Probe && isLoopback(u.Hostname()) {
		if err := probe(ctx, d.http, u); err != nil {
			if d.cfg.ProbeShortCircuit {
				return nil, &Error{Kind: KindProbe, Target: target, Err: err}
			}
			slog.Warn("backend: probe failed, dialing anyway", "target", target, "error", err)
		}
	}

	conn, resp, err := d.ws.DialContext(ctx, target, d.cfg.Header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &Error{Kind: KindRejected, Target: target, Err: fmt.Errorf("upgrade refused: %s", resp.Status)}
		}
		return nil, d.classify(ctx, target, err)
	}

	if opened != nil {
		opened()
	}
	if !d.cfg.RequireAck {
		return conn, nil
	}

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	session, err := d.handshake(ctx, conn, target)
	if !stop() {
		// ctx fired and the socket is already closing.
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		conn.Close()
		var ce *Error
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, d.classify(ctx, target, err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	slog.Info("backend: handshake complete", "target", target, "session", session)
	return conn, nil
}

func (d *Dialer) handshake(ctx context.Context, conn *websocket.Conn, target string) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
		conn.SetWriteDeadline(dl)
	}

	hello, err := json.Marshal(protocol.NewHello(d.cfg.AgentID, d.cfg.Name, uuid.NewString()))
	if err != nil {
		return "", fmt.Errorf("marshal hello: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("await ack: %w", err)
		}
		frameType, err := protocol.ParseFrameType(data)
		if err != nil {
			slog.Debug("backend: ignoring malformed frame during handshake", "error", err)
			continue
		}
		switch frameType {
		case protocol.TypeConnected:
			var ack protocol.ConnectedFrame
			_ = json.Unmarshal(data, &ack)
			return ack.SessionID, nil
		case protocol.TypeError:
			var rej protocol.ErrorFrame
			_ = json.Unmarshal(data, &rej)
			return "", &Error{Kind: KindRejected, Target: target, Err: fmt.Errorf("%s: %s", rej.Code, rej.Message)}
		default:
			slog.Debug("backend: ignoring frame before handshake ack", "type", frameType)
		}
	}
}

func (d *Dialer) classify(ctx context.Context, target string, err error) error {
	var ne net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		return &Error{Kind: KindTimeout, Target: target, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Target: target, Err: err}
	default:
		return &Error{Kind: KindNetwork, Target: target, Err: err}
	}
}
