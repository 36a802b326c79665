package jaegerz

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "jaegerz"
)

// Process describes the service that produced a span.
// Shared by every span of a tracer and never modified.
type Process struct {
	Tags    map[Tag]any `json:"tags,omitempty"`
	Service string      `json:"service"`
}

// LogRecord is a timestamped set of fields attached to a span.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Span is the record of a single unit of work in a distributed trace.
// Reporters receive finished spans as values; they own their copy.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]any   `json:"tags,omitempty"`
	Logs      []LogRecord   `json:"logs,omitempty"`
	Process   *Process      `json:"process,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`
	Context   SpanContext   `json:"context"`
	Name      string        `json:"name"`
}

// TraceID returns the span's trace id.
func (s *Span) TraceID() TraceID { return s.Context.TraceID() }

// SpanID returns the span's id.
func (s *Span) SpanID() SpanID { return s.Context.SpanID() }

// ParentID returns the id of the span's parent, zero for a root.
func (s *Span) ParentID() SpanID { return s.Context.ParentID() }

// clone deep-copies the mutable parts of the record.
func (s *Span) clone() Span {
	out := *s
	if s.Tags != nil {
		out.Tags = make(map[Tag]any, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Logs != nil {
		out.Logs = make([]LogRecord, len(s.Logs))
		for i, l := range s.Logs {
			out.Logs[i] = LogRecord{Timestamp: l.Timestamp, Fields: make(map[string]any, len(l.Fields))}
			for k, v := range l.Fields {
				out.Logs[i].Fields[k] = v
			}
		}
	}
	return out
}

// ActiveSpan wraps a Span with guarded mutation and lifecycle management.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span     *Span
	tracer   *Tracer
	mu       sync.Mutex // Protects span and finished.
	finished bool
}

// SetTag adds a string tag to the span.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.setTag(key, value)
}

// SetIntTag adds an integer tag to the span.
func (a *ActiveSpan) SetIntTag(key Tag, value int64) {
	a.setTag(key, value)
}

// SetFloatTag adds a floating point tag to the span.
func (a *ActiveSpan) SetFloatTag(key Tag, value float64) {
	a.setTag(key, value)
}

// SetBoolTag adds a boolean tag to the span.
func (a *ActiveSpan) SetBoolTag(key Tag, value bool) {
	a.setTag(key, value)
}

func (a *ActiveSpan) setTag(key Tag, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't modify finished spans.
	if a.finished {
		return
	}

	if a.span.Tags == nil {
		a.span.Tags = make(map[Tag]any)
	}
	a.span.Tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return nil, false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// Log appends a log record timestamped with the tracer clock.
// The fields map is copied.
func (a *ActiveSpan) Log(fields map[string]any) {
	a.LogAt(a.tracer.clock.Now(), fields)
}

// LogAt appends a log record with an explicit timestamp.
func (a *ActiveSpan) LogAt(ts time.Time, fields map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendLog(ts, fields)
}

// LogKV logs alternating key/value pairs. Non-string keys are formatted
// with fmt; a trailing key without value is dropped.
func (a *ActiveSpan) LogKV(keyValues ...any) {
	fields := make(map[string]any, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			key = fmt.Sprint(keyValues[i])
		}
		fields[key] = keyValues[i+1]
	}
	a.Log(fields)
}

func (a *ActiveSpan) appendLog(ts time.Time, fields map[string]any) {
	if a.finished {
		return
	}

	record := LogRecord{Timestamp: ts, Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		record.Fields[k] = v
	}
	a.span.Logs = append(a.span.Logs, record)
}

// SetBaggageItem attaches baggage to this span and every descendant started
// afterwards. The span gets a new SpanContext; contexts already handed out
// are unaffected.
func (a *ActiveSpan) SetBaggageItem(key, value string) {
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		return
	}
	a.span.Context = a.span.Context.WithBaggageItem(key, value)
	a.appendLog(now, map[string]any{
		LogFieldEvent: "baggage",
		"key":         key,
		LogFieldValue: value,
	})
}

// BaggageItem returns the baggage value for key.
func (a *ActiveSpan) BaggageItem(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context.BaggageItem(key)
}

// SpanContext returns the span's current identity and baggage.
func (a *ActiveSpan) SpanContext() SpanContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() TraceID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context.TraceID()
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() SpanID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Context.SpanID()
}

// Operation returns the span's operation name.
func (a *ActiveSpan) Operation() Key {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.Name
}

// SetOperationName renames the span. No-op once finished.
func (a *ActiveSpan) SetOperationName(operation Key) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		return
	}
	a.span.Name = operation
}

// IsFinished reports whether Finish has been called.
func (a *ActiveSpan) IsFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Snapshot returns a copy of the span record as it is now.
func (a *ActiveSpan) Snapshot() Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.clone()
}

// Finish completes the span using the tracer clock.
// Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.FinishAt(a.tracer.clock.Now())
}

// FinishAt completes the span with an explicit end time.
func (a *ActiveSpan) FinishAt(end time.Time) {
	a.mu.Lock()

	// Prevent double-finishing.
	if a.finished {
		a.mu.Unlock()
		return
	}

	if end.IsZero() {
		end = a.tracer.clock.Now()
	}
	a.finished = true
	a.span.EndTime = end
	a.span.Duration = end.Sub(a.span.StartTime)
	finished := a.span.clone()
	a.mu.Unlock()

	a.tracer.reportSpan(finished)
}

// Context creates a new context with this span embedded.
// The returned context can be used to start child spans.
func (a *ActiveSpan) Context(parent context.Context) context.Context {
	return ContextWithSpan(parent, a)
}

// ContextWithSpan returns a copy of ctx in which span is the active span.
func ContextWithSpan(ctx context.Context, span *ActiveSpan) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bundleKey, span)
}

// SpanFromContext returns the active span carried by ctx.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *ActiveSpan {
	if ctx == nil {
		return nil
	}

	if span, ok := ctx.Value(bundleKey).(*ActiveSpan); ok {
		return span
	}

	return nil
}
