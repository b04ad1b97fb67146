package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/net/netutil"

	"github.com/wtask/relay/internal/logging"
	"github.com/wtask/relay/internal/metrics"
	"github.com/wtask/relay/pkg/background"
)

// DefaultAddr - TCP address the relay listens on if not configured.
const DefaultAddr = ":50001"

// State - server lifecycle state.
type State int32

const (
	// StateStopped - server is not accepting connections.
	StateStopped State = iota
	// StateListening - at least one listener is being served.
	StateListening
)

func (st State) String() string {
	switch st {
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

// Server - accepts client connections, runs a session for each of them
// and owns the broadcaster which periodically delivers collected lines to all sessions.
type Server struct {
	addr        string
	interval    time.Duration
	maxSessions int
	session     sessionConfig
	welcomeSet  bool
	clock       clockwork.Clock
	logger      *slog.Logger

	queue       *Queue
	broadcaster *Broadcaster
	scope       *background.Scope

	state atomic.Int32

	mu        sync.Mutex
	closed    bool
	listeners []*net.Listener

	stopOnce sync.Once
	stopErr  error
}

// NewServer - builds server for TCP address addr; it is ready to serve one or several listeners.
func NewServer(addr string, options ...Option) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:     addr,
		interval: DefaultBroadcastInterval,
		session: sessionConfig{
			writeTimeout: 10 * time.Second,
			maxLineBytes: 4096,
		},
		clock:  clockwork.NewRealClock(),
		logger: logging.Discard(),
	}
	if err := setup(s, options...); err != nil {
		return nil, err
	}
	if !s.welcomeSet {
		s.session.welcome = fmt.Sprintf(
			"Welcome to the chat! Your messages are delivered to all participants every %v.",
			s.interval,
		)
	}

	s.queue = NewQueue(s.clock)
	s.broadcaster = NewBroadcaster(s.queue, s.interval, s.clock, s.logger)
	s.scope, _ = background.NewScope(context.Background())
	return s, nil
}

// State - current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// SessionCount - number of registered sessions, including not yet pruned dead ones.
func (s *Server) SessionCount() int {
	return s.queue.SessionCount()
}

// Addr - address of the first served listener, nil if there is none.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return (*s.listeners[0]).Addr()
}

// ListenAndServe - binds TCP address of the server and serves it.
// Bind failure is returned immediately.
func (s *Server) ListenAndServe() error {
	if s.isClosed() {
		return ErrServerClosed
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("relay.Server: listen %s: %w", s.addr, err)
	}
	return s.Serve(listener)
}

// Serve - starts broadcaster (once per server) and accepts connections of the listener until Stop.
// Each connection gets its own session goroutine. Returns nil when stopped by Stop,
// ErrServerClosed if the server was stopped before, or the accept error which has stopped the server.
func (s *Server) Serve(listener net.Listener) error {
	if s.maxSessions > 0 {
		listener = netutil.LimitListener(listener, s.maxSessions)
	}
	if !s.trackListener(&listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer func() {
		s.untrackListener(&listener)
		s.scope.Done()
	}()

	s.broadcaster.Start(s.scope.Context())
	s.logger.Info("Serving", "network", listener.Addr().Network(), "addr", listener.Addr().String())

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				metrics.AcceptErrors.WithLabelValues("temporary").Inc()
				s.logger.Warn("Accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-s.clock.After(backoff):
				case <-s.scope.Context().Done():
					return nil
				}
				continue
			}
			metrics.AcceptErrors.WithLabelValues("fatal").Inc()
			s.logger.Error("Accept failed, stopping server", "error", err)
			s.Stop()
			return fmt.Errorf("relay.Server: accept: %w", err)
		}
		backoff = 0
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return
	}
	session := newSession(conn, s.queue, s.session, s.logger)
	s.queue.Register(session)
	metrics.SessionsAccepted.Inc()
	s.scope.Go(func(context.Context) { session.Run() })
	s.logger.Info("Client connected", "session", session.ID(), "total", s.queue.SessionCount())
}

// Stop - closes all listeners, cancels the broadcaster, stops every registered session
// and then waits for the tick in progress.
// Each step is made even if previous one failed, the failures are logged and returned joined.
// Repeated calls return the result of the first one.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		listeners := make([]net.Listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, *l)
		}
		s.mu.Unlock()

		var errs []error
		for _, l := range listeners {
			if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("Listener close failed", "addr", l.Addr().String(), "error", err)
				errs = append(errs, err)
			}
		}

		s.broadcaster.halt()

		// closing connections releases writes of the tick in progress
		for _, session := range s.queue.Sessions() {
			if err := session.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("session %s: %w", session.ID(), err))
			}
			s.queue.Deregister(session)
		}
		s.broadcaster.Stop()

		s.scope.Cancel()
		s.state.Store(int32(StateStopped))
		s.stopErr = errors.Join(errs...)
		s.logger.Info("Server stopped")
	})
	return s.stopErr
}

// Shutdown - stops the server and waits until all session goroutines and accept loops
// are finished or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Stop()
	if werr := s.scope.Wait(ctx); werr != nil {
		return errors.Join(err, fmt.Errorf("relay.Server: shutdown: %w", werr))
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// trackListener - registers listener as served one. Returns false if server is closed.
func (s *Server) trackListener(l *net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners = append(s.listeners, l)
	s.scope.Add(1)
	s.state.Store(int32(StateListening))
	return true
}

func (s *Server) untrackListener(l *net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tracked := range s.listeners {
		if tracked == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	if len(s.listeners) == 0 {
		s.state.Store(int32(StateStopped))
	}
}

func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func nextBackoff(d time.Duration) time.Duration {
	const maxBackoff = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
