package background

import (
	"context"
	"sync"
)

// Scope - concurrency scope which joins goroutines related by meaning.
// Every member is started with the scope context and the scope can be
// canceled and awaited as a whole.
type Scope struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	members   sync.WaitGroup
}

// NewScope - builds a scope derived from parent.
// Returned cancel func cancels the scope context and waits for all members.
func NewScope(parent context.Context) (scope *Scope, cancel func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancelFunc := context.WithCancel(parent)
	s := &Scope{
		ctx:       ctx,
		ctxCancel: cancelFunc,
	}
	return s,
		func() {
			s.ctxCancel()
			s.members.Wait()
		}
}

// Context - returns scope context.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs f as a scope member in a new goroutine.
func (s *Scope) Go(f func(ctx context.Context)) {
	s.members.Add(1)
	go func() {
		defer s.members.Done()
		f(s.ctx)
	}()
}

// Add - registers members which are started outside of Go.
// Based on sync.WaitGroup.
func (s *Scope) Add(delta int) {
	s.members.Add(delta)
}

// Done - notifies scope when member is done.
func (s *Scope) Done() {
	s.members.Done()
}

// Cancel - cancels scope context without waiting for members.
func (s *Scope) Cancel() {
	s.ctxCancel()
}

// Wait - waits for all members to finish or ctx to expire.
// Returns ctx error if members are still running on expiry.
func (s *Scope) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.members.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
