package connection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

type ackMode int

const (
	ackConnected ackMode = iota
	ackError
	ackSilent
)

// testBackend is an httptest server speaking the backend side of the
// protocol: GET /status and a websocket at /ws.
type testBackend struct {
	srv    *httptest.Server
	status atomic.Int32
	ack    ackMode

	hellos chan protocol.HelloFrame
	conns  chan *websocket.Conn
	frames chan []byte
}

func newTestBackend(t *testing.T, ack ackMode) *testBackend {
	t.Helper()
	b := &testBackend{
		ack:    ack,
		hellos: make(chan protocol.HelloFrame, 16),
		conns:  make(chan *websocket.Conn, 16),
		frames: make(chan []byte, 64),
	}
	b.status.Store(http.StatusOK)

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(b.status.Load()))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HelloFrame
		if json.Unmarshal(data, &hello) == nil && hello.Type == protocol.TypeHello {
			b.hellos <- hello
		} else {
			b.frames <- data
		}

		switch b.ack {
		case ackConnected:
			conn.WriteJSON(protocol.ConnectedFrame{Type: protocol.TypeConnected, SessionID: "s-1"})
		case ackError:
			conn.WriteJSON(protocol.ErrorFrame{Type: protocol.TypeError, Code: "forbidden", Message: "unknown agent"})
		}
		b.conns <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.frames <- data
		}
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

func (b *testBackend) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("backend: no connection")
		return nil
	}
}

func (b *testBackend) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-b.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("backend: no frame")
		return nil
	}
}
