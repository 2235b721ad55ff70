package recognizer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

type rawConn interface {
	WriteJSON(v any) error
	WriteBinary(p []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

type dialConfig struct {
	URL         string
	Header      http.Header
	Proxy       func(*http.Request) (*url.URL, error)
	Timeout     time.Duration // handshake, read and write deadline
	MaxReadSize int64
}

type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	closeOnce sync.Once
	closeErr  error
}

func dialWebsocket(ctx context.Context, cfg dialConfig) (*wsConn, error) {
	dialer := websocket.Dialer{
		Proxy:            cfg.Proxy,
		HandshakeTimeout: cfg.Timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, cfg.URL, cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	if cfg.MaxReadSize > 0 {
		conn.SetReadLimit(cfg.MaxReadSize)
	}
	return &wsConn{conn: conn, timeout: cfg.Timeout}, nil
}

func (c *wsConn) deadline() time.Time {
	if c.timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.timeout)
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(c.deadline())
	return c.conn.WriteJSON(v)
}

func (c *wsConn) WriteBinary(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(c.deadline())
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_ = c.conn.SetReadDeadline(c.deadline())
	_, data, err := c.conn.ReadMessage()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	return data, err
}

// Close sends a close frame without taking the write lock, so a producer
// stuck in a write cannot block teardown.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
