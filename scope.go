package jaegerz

import (
	"context"
	"sync/atomic"
)

// Scope keeps a span active for a block of work.
//
//	ctx, scope := tracer.BuildSpan("op").StartActive(ctx, true)
//	defer scope.Close()
//
// The span is active in the context returned by StartActive. The context the
// caller passed in still holds the previous span, so leaving the block
// restores it without any shared state.
type Scope struct {
	span          *ActiveSpan
	previous      *ActiveSpan
	ctx           context.Context
	finishOnClose bool
	closed        atomic.Bool
}

// Span returns the span guarded by the scope.
func (s *Scope) Span() *ActiveSpan {
	return s.span
}

// Context returns the context in which the scope's span is active.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Previous returns the span that was active when the scope opened, or nil.
func (s *Scope) Previous() *ActiveSpan {
	return s.previous
}

// Close ends the scope. The span is finished only when the scope was opened
// with finishOnClose. Calling Close more than once is a no-op.
func (s *Scope) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.finishOnClose {
		s.span.Finish()
	}
}
