// Package otbridge exposes a jaegerz Tracer through the OpenTracing API.
//
// Span contexts handed out by the bridge are plain jaegerz.SpanContext
// values, so contexts move freely between bridged and native code.
package otbridge

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"

	"github.com/zoobzio/jaegerz"
)

// Tracer implements opentracing.Tracer on top of a jaegerz Tracer.
type Tracer struct {
	tracer *jaegerz.Tracer
}

var _ opentracing.Tracer = (*Tracer)(nil)

// New wraps tracer.
func New(tracer *jaegerz.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// Native returns the wrapped tracer.
func (t *Tracer) Native() *jaegerz.Tracer {
	return t.tracer
}

// StartSpan implements opentracing.Tracer. The first ChildOf reference is
// the parent; a FollowsFrom reference is used when there is no ChildOf.
func (t *Tracer) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var options opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&options)
	}

	builder := t.tracer.BuildSpan(operationName).IgnoreActiveSpan()

	if parent, ok := parentOf(options.References); ok {
		builder = builder.AsChildOf(parent)
	}
	if !options.StartTime.IsZero() {
		builder = builder.WithStartTime(options.StartTime)
	}
	for k, v := range options.Tags {
		builder = builder.WithTag(k, normalizeTag(v))
	}

	return &Span{
		span:   builder.Start(context.Background()),
		tracer: t,
	}
}

func parentOf(refs []opentracing.SpanReference) (jaegerz.SpanContext, bool) {
	var followsFrom *jaegerz.SpanContext
	for _, ref := range refs {
		sc, ok := ref.ReferencedContext.(jaegerz.SpanContext)
		if !ok || !sc.IsValid() {
			continue
		}
		switch ref.Type {
		case opentracing.ChildOfRef:
			return sc, true
		case opentracing.FollowsFromRef:
			if followsFrom == nil {
				followsFrom = &sc
			}
		}
	}
	if followsFrom != nil {
		return *followsFrom, true
	}
	return jaegerz.SpanContext{}, false
}

// Inject implements opentracing.Tracer.
func (t *Tracer) Inject(sm opentracing.SpanContext, format interface{}, carrier interface{}) error {
	sc, ok := sm.(jaegerz.SpanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	f, ok := nativeFormat(format)
	if !ok {
		return opentracing.ErrUnsupportedFormat
	}

	err := t.tracer.Inject(sc, f, carrier)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jaegerz.ErrInvalidCarrier):
		return opentracing.ErrInvalidCarrier
	case errors.Is(err, jaegerz.ErrInvalidSpanContext):
		return opentracing.ErrInvalidSpanContext
	default:
		return err
	}
}

// Extract implements opentracing.Tracer. A carrier without a usable
// context yields opentracing.ErrSpanContextNotFound.
func (t *Tracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	f, ok := nativeFormat(format)
	if !ok {
		return nil, opentracing.ErrUnsupportedFormat
	}
	if _, ok := carrier.(opentracing.TextMapReader); !ok {
		return nil, opentracing.ErrInvalidCarrier
	}

	sc, ok := t.tracer.Extract(f, carrier)
	if !ok {
		return nil, opentracing.ErrSpanContextNotFound
	}
	return sc, nil
}

func nativeFormat(format interface{}) (jaegerz.Format, bool) {
	switch format {
	case opentracing.HTTPHeaders:
		return jaegerz.HTTPHeaders, true
	case opentracing.TextMap:
		return jaegerz.TextMap, true
	default:
		return 0, false
	}
}
