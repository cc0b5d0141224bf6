// Package jobs holds the plumbing every background job runs on: cancellation
// tokens, the progress queue, the dispatcher that starts workers, and the
// registries that outlive a single job.
package jobs

import (
	"context"
	"sync/atomic"
)

// Token is a cooperative cancellation flag owned by one job.
// Workers poll Cancelled; anything blocking can select on Done or use Context.
type Token struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewToken returns a token that is not cancelled
func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel marks the token cancelled. Calling it more than once is harmless.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether a stop was requested
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the token is cancelled
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context is cancelled together with the token, for subprocesses and other
// context-aware calls.
func (t *Token) Context() context.Context {
	return t.ctx
}
