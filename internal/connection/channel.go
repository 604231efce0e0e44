package connection

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxMessageSize bounds inbound frames (512KB).
const maxMessageSize = 512 * 1024

// channel is one open, handshaken connection and its two pumps.
type channel struct {
	id     string
	target string
	conn   Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

func newChannel(target string, conn Conn, cfg Config) *channel {
	return &channel{
		id:           uuid.NewString(),
		target:       target,
		conn:         conn,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		writeWait:    cfg.WriteWait,
	}
}

// start launches the pumps. onMessage and onClosed are called from the read
// goroutine; onClosed exactly once.
func (c *channel) start(onMessage func([]byte), onClosed func(error)) {
	go c.writePump()
	go c.readPump(onMessage, onClosed)
}

func (c *channel) readPump(onMessage func([]byte), onClosed func(error)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			onClosed(err)
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		onMessage(data)
	}
}

// writePump is the only writer on the socket. A write error closes the
// socket, which surfaces through readPump.
func (c *channel) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands msg to the writer without blocking.
func (c *channel) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the writer, which sends a close frame and closes the socket.
func (c *channel) close() {
	c.once.Do(func() { close(c.done) })
}
