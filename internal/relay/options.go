package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option - customizes Server built with NewServer.
type Option func(s *Server) error

func setup(s *Server, options ...Option) error {
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger - sets structured logger, by default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("relay.WithLogger: logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// WithClock - overwrites time source of the broadcaster and packet timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) error {
		if clock == nil {
			return errors.New("relay.WithClock: clock is nil")
		}
		s.clock = clock
		return nil
	}
}

// WithBroadcastInterval - overwrites default broadcast period (5s).
func WithBroadcastInterval(interval time.Duration) Option {
	return func(s *Server) error {
		if interval <= 0 {
			return fmt.Errorf("relay.WithBroadcastInterval: invalid interval (%v)", interval)
		}
		s.interval = interval
		return nil
	}
}

// WithWriteTimeout - limits single write to a client, 0 means no limit.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout < 0 {
			return fmt.Errorf("relay.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		s.session.writeTimeout = timeout
		return nil
	}
}

// WithMaxLineBytes - overwrites max length of client line. Longer line drops the client.
func WithMaxLineBytes(size int) Option {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("relay.WithMaxLineBytes: invalid size (%d)", size)
		}
		s.session.maxLineBytes = size
		return nil
	}
}

// WithMaxSessions - limits number of concurrently served connections per listener.
// Exceeding connections wait in the listener backlog. 0 means no limit.
func WithMaxSessions(n int) Option {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("relay.WithMaxSessions: invalid limit (%d)", n)
		}
		s.maxSessions = n
		return nil
	}
}

// WithWelcome - overwrites line which is sent to every client just after connect.
// Empty text disables welcome line.
func WithWelcome(text string) Option {
	return func(s *Server) error {
		s.session.welcome = text
		s.welcomeSet = true
		return nil
	}
}
