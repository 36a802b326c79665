package jaegerz

import (
	"context"
)

// ComponentName is the value of the component tag on server spans.
const ComponentName = "jaegerz"

// StartServerSpan begins the span for an inbound request. The span continues
// the caller's trace when carrier holds a usable HTTP-headers context and
// starts a new trace otherwise; a bad or missing context never fails the
// request. The span is tagged as server-kind, is active in the returned
// context, and finishes when the scope closes.
func (t *Tracer) StartServerSpan(ctx context.Context, carrier TextMapReader, operation Key) (context.Context, *Scope) {
	builder := t.BuildSpan(operation)
	if carrier != nil {
		if parent, ok := t.Extract(HTTPHeaders, carrier); ok {
			builder = builder.AsChildOf(parent)
		}
	}

	return builder.
		WithTag(TagSpanKind, SpanKindServer).
		WithTag(TagComponent, ComponentName).
		StartActive(ctx, true)
}
