// Package wsline exposes WebSocket clients as line-oriented net.Conn streams,
// so a browser can join the relay through the same session code as a TCP client.
//
// Every text (or binary) frame read from the peer becomes one line terminated by "\n";
// every Write is sent as a single text frame without the trailing "\n".
package wsline

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// Conn - net.Conn over websocket.Conn.
type Conn struct {
	ws *websocket.Conn

	readMu    sync.Mutex
	frame     io.Reader
	pendingNL bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*Conn)(nil)

// NewConn - wraps established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read - reads frames payload, each frame is followed by "\n".
// Normal close from the peer is reported as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.frame == nil {
			if c.pendingNL {
				c.pendingNL = false
				p[0] = '\n'
				return 1, nil
			}
			kind, r, err := c.ws.NextReader()
			if err != nil {
				return 0, readError(err)
			}
			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}
			c.frame = r
		}
		n, err := c.frame.Read(p)
		if errors.Is(err, io.EOF) {
			c.frame = nil
			c.pendingNL = true
			if n == 0 {
				continue
			}
			return n, nil
		}
		if err != nil {
			return n, readError(err)
		}
		return n, nil
	}
}

func readError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return io.EOF
	}
	return err
}

// Write - sends p as single text frame, trailing "\n" is dropped.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte{'\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite - sends close frame to the peer, reading side stays open until peer replies.
// Safe to call concurrently with Write.
func (c *Conn) CloseWrite() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// Close - closes underlying network connection. Repeated calls return net.ErrClosed.
func (c *Conn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
		err = c.closeErr
	})
	return err
}

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
