package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Connection is one admitted push client. It is open from admission until it
// is terminated, and alive is cleared by each heartbeat and set again by the
// client's pong.
type Connection struct {
	conn *websocket.Conn
	info ConnInfo

	alive atomic.Bool
	open  atomic.Bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, info ConnInfo) *Connection {
	c := &Connection{conn: conn, info: info}
	c.alive.Store(true)
	c.open.Store(true)
	return c
}

// Info returns the connection's metadata.
func (c *Connection) Info() ConnInfo {
	return c.info
}

// Open reports whether the connection has not been terminated.
func (c *Connection) Open() bool {
	return c.open.Load()
}

// Alive reports whether the client answered the last liveness probe.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

func (c *Connection) markAlive() {
	c.alive.Store(true)
}

func (c *Connection) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// terminate closes the underlying socket once. A non-zero code sends a close
// frame first so well-behaved clients learn why.
func (c *Connection) terminate(code int, reason string) {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		if c.conn == nil {
			return
		}
		if code != 0 {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		_ = c.conn.Close()
	})
}
