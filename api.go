// Package jaegerz provides a minimal distributed tracing core that speaks the
// Jaeger propagation format.
//
// jaegerz covers the part of a tracing client that every service needs:
// span identity, parent/child linkage, baggage, and carrying trace context
// across process boundaries. Shipping finished spans to a backend is left to
// a Reporter.
//
// Core Components:
//   - SpanContext: Immutable identity and baggage carried across processes.
//   - ActiveSpan: Mutable handle for one open unit of work.
//   - SpanBuilder: Immutable span configuration, materialized by Start.
//   - Scope: Guard that keeps a span active and finishes it on Close.
//   - Tracer: Creates spans, injects and extracts context.
//   - Reporter: Receives finished spans exactly once.
//
// Basic Usage:
//
//	tracer := jaegerz.New("hello")
//	defer tracer.Close()
//
//	ctx, scope := tracer.BuildSpan("say-hello").StartActive(ctx, true)
//	defer scope.Close()
//
//	scope.Span().SetTag("hello-to", "world")
//	scope.Span().SetBaggageItem("greeting", "Hi")
//
//	// Spans started from ctx become children of say-hello.
//	_, child := tracer.StartSpan(ctx, "format-string")
//	defer child.Finish()
//
// Propagation:
//
// Inject writes the Jaeger "uber-trace-id" header plus one "uberctx-" entry
// per baggage item. Extract reads them back. Missing or malformed headers are
// not errors: Extract reports false and the caller starts a new trace.
//
//	tracer.Inject(span.SpanContext(), jaegerz.HTTPHeaders, jaegerz.HTTPHeadersCarrier(req.Header))
//
//	ctx, scope := tracer.StartServerSpan(r.Context(), jaegerz.HTTPHeadersCarrier(r.Header), "format")
//	defer scope.Close()
//
// Active Spans:
//
// The active span travels in context.Context. Each goroutine or request owns
// its own chain of contexts, so nesting in one unit of work never changes
// what another unit sees as current.
//
// Thread Safety:
//
// Tracer is safe for concurrent use by multiple goroutines.
// ActiveSpan operations are guarded by a mutex.
// Reporters must accept concurrent Report calls from independent spans.
//
// Finish Semantics:
//
// Finish is idempotent. The first call freezes the span and hands it to the
// Reporter if it is sampled. Later calls, and any tag, log or baggage
// mutation after finish, are silently ignored.
package jaegerz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Standard tag keys.
const (
	TagSpanKind   Tag = "span.kind"
	TagComponent  Tag = "component"
	TagHTTPMethod Tag = "http.method"
	TagHTTPURL    Tag = "http.url"
	TagHTTPStatus Tag = "http.status_code"
	TagError      Tag = "error"

	TagSamplerType  Tag = "sampler.type"
	TagSamplerParam Tag = "sampler.param"
)

// Values for TagSpanKind.
const (
	SpanKindClient = "client"
	SpanKindServer = "server"
)

// Standard log field keys.
const (
	LogFieldEvent   = "event"
	LogFieldMessage = "message"
	LogFieldValue   = "value"
)

// Version is reported in the tracer's process tags.
const Version = "0.1.0"
