package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wtask/relay/internal/relay/line"
)

// enqueuer - receiver of client lines.
type enqueuer interface {
	Enqueue(text string)
}

type sessionConfig struct {
	writeTimeout time.Duration
	maxLineBytes int
	welcome      string
}

// Session - holds single client connection: reads its lines into the queue
// and writes broadcast packets back.
type Session struct {
	conn   net.Conn
	id     string
	sink   enqueuer
	config sessionConfig
	logger *slog.Logger

	// connected goes false only once, on read failure or Stop
	connected atomic.Bool
	// broken is set after failed write, session is dead since then
	broken  atomic.Bool
	writeMu sync.Mutex
}

func newSession(conn net.Conn, sink enqueuer, config sessionConfig, logger *slog.Logger) *Session {
	id := sessionID(conn)
	s := &Session{
		conn:   conn,
		id:     id,
		sink:   sink,
		config: config,
		logger: logger.With("session", id, "conn", uuid.NewString()),
	}
	s.connected.Store(true)
	return s
}

// ID - display identity of the session peer, "<address>:<port>".
func (s *Session) ID() string {
	return s.id
}

// Run - sends welcome line and then reads client lines until connection is closed or Stop is called.
// Blank lines are skipped. Any I/O failure stops the session and is never returned to the caller.
func (s *Session) Run() {
	defer s.Stop()

	if s.config.welcome != "" {
		if err := s.SendLine(s.config.welcome); err != nil {
			return
		}
	}

	scanner := line.NewScanner(s.conn, s.config.maxLineBytes)
	for scanner.Scan() {
		if !s.connected.Load() {
			return
		}
		text := line.Clean(scanner.Text())
		if line.IsBlank(text) {
			continue
		}
		s.sink.Enqueue(formatMessage(s.id, text))
	}

	if !s.connected.Load() {
		// stopped from outside
		return
	}
	if err := scanner.Err(); err != nil {
		s.logger.Info("Session read failed", "error", err)
		return
	}
	s.logger.Debug("Session closed by peer")
}

// SendLine - writes text followed by EOL with a single write, if session is still connected.
// Write failure is logged and marks the session dead; it will be pruned on the next broadcast.
func (s *Session) SendLine(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsConnected() {
		return ErrSessionClosed
	}
	if s.config.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.writeTimeout))
	}
	if _, err := io.WriteString(s.conn, text+"\n"); err != nil {
		s.broken.Store(true)
		s.logger.Warn("Session write failed", "error", err)
		return fmt.Errorf("relay.Session: write: %w", err)
	}
	return nil
}

// IsConnected - reports the session is neither stopped nor broken by failed write.
func (s *Session) IsConnected() bool {
	return s.connected.Load() && !s.broken.Load()
}

// Stop - marks session disconnected and releases write side and the connection.
// Every release step is attempted even if previous one failed. Repeated calls are no-op.
func (s *Session) Stop() error {
	if !s.connected.CompareAndSwap(true, false) {
		return nil
	}

	var errs []error
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil && !isClosedConn(err) {
			errs = append(errs, fmt.Errorf("close write: %w", err))
		}
	}
	if err := s.conn.Close(); err != nil && !isClosedConn(err) {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("Session release failed", "error", err)
	}
	s.logger.Debug("Session stopped")
	return err
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
