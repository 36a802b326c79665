package jaegerz

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	flagSampled byte = 1 << 0
	flagDebug   byte = 1 << 1
)

// SpanContext is the identity of a span plus the baggage it carries.
// It is an immutable value: every modification returns a new SpanContext.
type SpanContext struct {
	baggage  map[string]string
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	flags    byte
	remote   bool
}

// NewSpanContext builds a local span context. The baggage map is copied.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, sampled bool, baggage map[string]string) SpanContext {
	var flags byte
	if sampled {
		flags = flagSampled
	}
	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    flags,
		baggage:  copyBaggage(baggage, 0),
	}
}

// TraceID returns the id shared by every span in the trace.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the id of this span.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns the id of the span this one descends from, or zero for a
// root. For a context produced by Extract it equals SpanID: a remote context
// stands for the caller's span, and local children hang under it.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// IsSampled reports whether spans in this trace are recorded.
func (c SpanContext) IsSampled() bool { return c.flags&flagSampled != 0 }

// IsDebug reports whether the debug flag was set at the trace root.
func (c SpanContext) IsDebug() bool { return c.flags&flagDebug != 0 }

// IsValid reports whether both ids are non-zero.
func (c SpanContext) IsValid() bool { return c.traceID.IsValid() && c.spanID != 0 }

// IsRemote reports whether the context was produced by Extract.
func (c SpanContext) IsRemote() bool { return c.remote }

// WithBaggageItem returns a copy of the context with key set to value.
// The receiver and any context sharing its baggage are unchanged.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	next := c
	next.baggage = copyBaggage(c.baggage, 1)
	next.baggage[key] = value
	return next
}

// BaggageItem returns the baggage value for key.
func (c SpanContext) BaggageItem(key string) (string, bool) {
	v, ok := c.baggage[key]
	return v, ok
}

// ForeachBaggageItem calls handler for each baggage item until it returns false.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// Baggage returns a copy of the baggage map.
func (c SpanContext) Baggage() map[string]string {
	return copyBaggage(c.baggage, 0)
}

// String renders the context as trace:span:parent:flags.
func (c SpanContext) String() string {
	return fmt.Sprintf("%s:%s:%s:%x", c.traceID, c.spanID, c.parentID, c.flags)
}

// ContextFromString parses the trace:span:parent:flags form written by String.
// The result is marked remote and carries no baggage.
func ContextFromString(value string) (SpanContext, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return SpanContext{}, fmt.Errorf("span context %q: expected 4 parts, got %d", value, len(parts))
	}

	traceID, err := TraceIDFromString(parts[0])
	if err != nil {
		return SpanContext{}, err
	}
	spanID, err := SpanIDFromString(parts[1])
	if err != nil {
		return SpanContext{}, err
	}
	// Parent id is informational only and is not carried forward.
	if _, err := SpanIDFromString(parts[2]); err != nil {
		return SpanContext{}, err
	}
	flags, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return SpanContext{}, fmt.Errorf("span context %q: flags: %w", value, err)
	}

	sc := SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: spanID,
		flags:    byte(flags),
		remote:   true,
	}
	if !sc.IsValid() {
		return SpanContext{}, fmt.Errorf("span context %q: %w", value, ErrInvalidSpanContext)
	}
	return sc, nil
}

type spanContextJSON struct {
	Baggage  map[string]string `json:"baggage,omitempty"`
	TraceID  string            `json:"trace_id"`
	SpanID   string            `json:"span_id"`
	ParentID string            `json:"parent_id,omitempty"`
	Sampled  bool              `json:"sampled"`
}

// MarshalJSON renders ids as hex strings.
func (c SpanContext) MarshalJSON() ([]byte, error) {
	out := spanContextJSON{
		TraceID: c.traceID.String(),
		SpanID:  c.spanID.String(),
		Sampled: c.IsSampled(),
		Baggage: c.baggage,
	}
	if c.parentID != 0 {
		out.ParentID = c.parentID.String()
	}
	return json.Marshal(out)
}

// withChild derives the context of a new child span. Baggage is shared
// because it is never mutated in place.
func (c SpanContext) withChild(spanID SpanID) SpanContext {
	return SpanContext{
		traceID:  c.traceID,
		spanID:   spanID,
		parentID: c.spanID,
		flags:    c.flags,
		baggage:  c.baggage,
	}
}

func copyBaggage(src map[string]string, extra int) map[string]string {
	if len(src) == 0 && extra == 0 {
		return nil
	}
	dst := make(map[string]string, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
