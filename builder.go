package jaegerz

import (
	"context"
	"time"
)

type tagPair struct {
	value any
	key   Tag
}

// SpanBuilder holds the configuration of a span that has not started yet.
// It is a value: every method returns a modified copy and leaves the
// receiver untouched, so a partially configured builder can be reused.
type SpanBuilder struct {
	tracer       *Tracer
	startTime    time.Time
	parent       SpanContext
	operation    Key
	tags         []tagPair
	hasParent    bool
	ignoreActive bool
}

// BuildSpan begins configuring a span named operation.
func (t *Tracer) BuildSpan(operation Key) SpanBuilder {
	return SpanBuilder{tracer: t, operation: operation}
}

// AsChildOf sets an explicit parent. An invalid context is ignored, which
// leaves the span a root unless a span is active in the start context.
func (b SpanBuilder) AsChildOf(parent SpanContext) SpanBuilder {
	if !parent.IsValid() {
		return b
	}
	b.parent = parent
	b.hasParent = true
	return b
}

// WithTag adds a tag applied when the span starts.
func (b SpanBuilder) WithTag(key Tag, value any) SpanBuilder {
	// Full slice expression forces append to copy instead of sharing.
	b.tags = append(b.tags[:len(b.tags):len(b.tags)], tagPair{key: key, value: value})
	return b
}

// WithStartTime overrides the tracer clock for the start timestamp.
func (b SpanBuilder) WithStartTime(start time.Time) SpanBuilder {
	b.startTime = start
	return b
}

// IgnoreActiveSpan stops Start from parenting to the span active in ctx.
func (b SpanBuilder) IgnoreActiveSpan() SpanBuilder {
	b.ignoreActive = true
	return b
}

// Start creates the span. The parent is, in order: the explicit AsChildOf
// context, the span active in ctx, or none. ctx itself is not modified.
func (b SpanBuilder) Start(ctx context.Context) *ActiveSpan {
	t := b.tracer

	parent, hasParent := b.parent, b.hasParent
	if !hasParent && !b.ignoreActive {
		if active := SpanFromContext(ctx); active != nil {
			parent, hasParent = active.SpanContext(), true
		}
	}

	start := b.startTime
	if start.IsZero() {
		start = t.clock.Now()
	}

	span := &Span{
		Name:      b.operation,
		StartTime: start,
		Process:   t.process,
	}

	if hasParent {
		span.Context = parent.withChild(t.generateSpanID())
		if parent.IsRemote() {
			t.metrics.tracesJoined(span.Context.IsSampled())
		}
	} else {
		traceID := t.generateTraceID()
		sampled, samplerTags := t.sampler.IsSampled(traceID, b.operation)
		var flags byte
		if sampled {
			flags = flagSampled
		}
		span.Context = SpanContext{
			traceID: traceID,
			spanID:  t.generateSpanID(),
			flags:   flags,
		}
		if len(samplerTags) > 0 {
			span.Tags = make(map[Tag]any, len(samplerTags)+len(b.tags))
			for k, v := range samplerTags {
				span.Tags[k] = v
			}
		}
		t.metrics.tracesStarted(sampled)
	}

	if len(b.tags) > 0 {
		if span.Tags == nil {
			span.Tags = make(map[Tag]any, len(b.tags))
		}
		for _, tag := range b.tags {
			span.Tags[tag.key] = tag.value
		}
	}

	t.metrics.spanStarted(span.Context.IsSampled())

	return &ActiveSpan{
		span:   span,
		tracer: t,
	}
}

// StartActive creates the span and returns a context in which it is active,
// along with a Scope guarding it. With finishOnClose the span is finished
// when the scope closes.
func (b SpanBuilder) StartActive(ctx context.Context, finishOnClose bool) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	span := b.Start(ctx)
	scope := &Scope{
		span:          span,
		previous:      SpanFromContext(ctx),
		finishOnClose: finishOnClose,
	}
	scope.ctx = ContextWithSpan(ctx, span)
	return scope.ctx, scope
}
