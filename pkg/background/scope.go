package background

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled - cause of scope expiration when cancel func is called.
var ErrCanceled = errors.New("background.Scope: canceled")

// Scope - group of background workers sharing one cancellation.
// First worker failure expires the whole scope.
type Scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
}

// NewScope - concurrency scope builder.
// Returned cancel func expires the scope and waits for all its workers.
func NewScope(parent context.Context) (scope *Scope, cancel func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancelCause := context.WithCancelCause(parent)
	s := &Scope{
		ctx:    ctx,
		cancel: cancelCause,
	}
	return s,
		func() {
			s.cancel(ErrCanceled)
			s.wg.Wait()
		}
}

// Context - return scope context, it is done when the scope is expired
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs worker in its own goroutine.
// Non-nil result of the worker expires the scope with that error as a cause.
func (s *Scope) Go(worker func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := worker(s.ctx); err != nil {
			s.cancel(err)
		}
	}()
}

// Err - returns nil while scope is active, otherwise the cause of expiration.
func (s *Scope) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}
