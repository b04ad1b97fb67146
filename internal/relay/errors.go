package relay

import "errors"

var (
	// ErrServerClosed - returned by Serve and ListenAndServe after Stop was called.
	// A stopped Server can't be started again.
	ErrServerClosed = errors.New("relay.Server: closed")

	// ErrSessionClosed - returned by Session.SendLine when session is not connected anymore.
	ErrSessionClosed = errors.New("relay.Session: closed")
)
