package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSTransport carries the same frames as SSE, one text message per frame.
type WSTransport struct {
	conn   *websocket.Conn
	closed chan struct{}
	once   sync.Once
	mu     sync.Mutex
}

// NewWebSocket takes ownership of conn. Inbound messages are read and
// discarded so close and ping frames are processed; a read error marks the
// transport closed.
func NewWebSocket(conn *websocket.Conn) *WSTransport {
	t := &WSTransport{conn: conn, closed: make(chan struct{})}
	go t.readLoop()
	return t
}

func (t *WSTransport) readLoop() {
	defer t.markClosed()
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (t *WSTransport) markClosed() {
	t.once.Do(func() { close(t.closed) })
}

func (t *WSTransport) WriteFrame(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *WSTransport) Closed() <-chan struct{} { return t.closed }

// Close sends a close frame and releases the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.mu.Unlock()
	t.markClosed()
	return t.conn.Close()
}
