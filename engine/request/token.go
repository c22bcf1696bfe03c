package request

import (
	"context"
	"sync"
)

// Token is the read-only cancellation signal a phase polls at suspension
// boundaries. The caller who built the request owns the writable side;
// phases only observe it.
type Token interface {
	// Signaled reports whether cancellation has been requested.
	Signaled() bool
	// Done returns a channel closed when cancellation is requested.
	Done() <-chan struct{}
}

// CancelToken is a manually triggered Token, typically wired to a UI cancel
// action. The zero value is not usable; use NewCancelToken.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an unsignaled CancelToken.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel signals the token. Safe to call more than once, from any number of
// goroutines.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Signaled implements Token.
func (t *CancelToken) Signaled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done implements Token.
func (t *CancelToken) Done() <-chan struct{} { return t.done }

// contextToken adapts a context.Context to the Token shape so that native
// context cancellation surfaces to phases the same way a UI cancel does.
type contextToken struct {
	ctx context.Context
}

// TokenFromContext wraps ctx as a Token.
func TokenFromContext(ctx context.Context) Token {
	return contextToken{ctx: ctx}
}

// Signaled implements Token.
func (t contextToken) Signaled() bool { return t.ctx.Err() != nil }

// Done implements Token.
func (t contextToken) Done() <-chan struct{} { return t.ctx.Done() }

// Context derives a context that is cancelled when the token fires, so that
// in-flight dependency operations observe a UI cancel through their own
// context plumbing. The returned CancelFunc must be called to release the
// watcher.
func Context(parent context.Context, token Token) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if done := token.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, cancel
}

// neverToken is the Token used when a request is built without one.
type neverToken struct{}

func (neverToken) Signaled() bool        { return false }
func (neverToken) Done() <-chan struct{} { return nil }
