package wsline

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Listener - net.Listener which accepts websocket clients upgraded by its HTTP handler.
type Listener struct {
	addr     net.Addr
	upgrader websocket.Upgrader
	logger   *slog.Logger

	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

var _ net.Listener = (*Listener)(nil)

// NewListener - builds listener reported with addr. checkOrigin may be nil to accept any origin.
func NewListener(addr net.Addr, checkOrigin func(r *http.Request) bool, logger *slog.Logger) *Listener {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
		conns:  make(chan net.Conn),
		done:   make(chan struct{}),
	}
}

// ServeHTTP - upgrades request and hands the connection over to Accept.
// The connection is closed if the listener is closed before it is accepted.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.done:
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has replied to the client already
		l.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(ws)
	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	case <-r.Context().Done():
		conn.Close()
	}
}

// Accept - waits for the next upgraded connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close - stops accepting, pending handlers close their connections.
func (l *Listener) Close() error {
	err := net.ErrClosed
	l.closeOnce.Do(func() {
		close(l.done)
		err = nil
	})
	return err
}

// Addr - address given on construction.
func (l *Listener) Addr() net.Addr {
	return l.addr
}
