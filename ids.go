package jaegerz

import (
	"fmt"
	"strconv"
)

// TraceID is a 128-bit trace identifier. High is zero for 64-bit traces.
type TraceID struct {
	High uint64
	Low  uint64
}

// SpanID identifies a span within a trace.
type SpanID uint64

// IsValid reports whether the trace id is non-zero.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

func (t TraceID) String() string {
	if t.High == 0 {
		return fmt.Sprintf("%016x", t.Low)
	}
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}

func (s SpanID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// TraceIDFromString parses a hex trace id of up to 32 characters.
func TraceIDFromString(s string) (TraceID, error) {
	var t TraceID
	if len(s) == 0 || len(s) > 32 {
		return t, fmt.Errorf("trace id %q: invalid length %d", s, len(s))
	}

	var err error
	if len(s) > 16 {
		split := len(s) - 16
		if t.High, err = strconv.ParseUint(s[:split], 16, 64); err != nil {
			return TraceID{}, fmt.Errorf("trace id %q: %w", s, err)
		}
		s = s[split:]
	}
	if t.Low, err = strconv.ParseUint(s, 16, 64); err != nil {
		return TraceID{}, fmt.Errorf("trace id %q: %w", s, err)
	}
	return t, nil
}

// SpanIDFromString parses a hex span id of up to 16 characters.
func SpanIDFromString(s string) (SpanID, error) {
	if len(s) == 0 || len(s) > 16 {
		return 0, fmt.Errorf("span id %q: invalid length %d", s, len(s))
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("span id %q: %w", s, err)
	}
	return SpanID(id), nil
}
