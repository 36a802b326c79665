package otbridge

import (
	"fmt"
	"math"
	"strconv"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"

	"github.com/zoobzio/jaegerz"
)

// Span implements opentracing.Span on top of a jaegerz ActiveSpan.
type Span struct {
	span   *jaegerz.ActiveSpan
	tracer *Tracer
}

var _ opentracing.Span = (*Span)(nil)

// Native returns the wrapped span.
func (s *Span) Native() *jaegerz.ActiveSpan {
	return s.span
}

// Finish implements opentracing.Span.
func (s *Span) Finish() {
	s.span.Finish()
}

// FinishWithOptions records the bulk logs, then finishes at opts.FinishTime
// or now.
func (s *Span) FinishWithOptions(opts opentracing.FinishOptions) {
	for _, record := range opts.LogRecords {
		s.span.LogAt(record.Timestamp, fieldsToMap(record.Fields))
	}
	for _, data := range opts.BulkLogData {
		record := data.ToLogRecord()
		s.span.LogAt(record.Timestamp, fieldsToMap(record.Fields))
	}

	if opts.FinishTime.IsZero() {
		s.span.Finish()
		return
	}
	s.span.FinishAt(opts.FinishTime)
}

// Context implements opentracing.Span.
func (s *Span) Context() opentracing.SpanContext {
	return s.span.SpanContext()
}

// SetOperationName implements opentracing.Span.
func (s *Span) SetOperationName(operationName string) opentracing.Span {
	s.span.SetOperationName(operationName)
	return s
}

// SetTag implements opentracing.Span.
func (s *Span) SetTag(key string, value interface{}) opentracing.Span {
	switch v := normalizeTag(value).(type) {
	case string:
		s.span.SetTag(key, v)
	case int64:
		s.span.SetIntTag(key, v)
	case float64:
		s.span.SetFloatTag(key, v)
	case bool:
		s.span.SetBoolTag(key, v)
	}
	return s
}

// LogFields implements opentracing.Span.
func (s *Span) LogFields(fields ...log.Field) {
	s.span.Log(fieldsToMap(fields))
}

// LogKV implements opentracing.Span. Malformed pairs are logged as an error
// record instead.
func (s *Span) LogKV(alternatingKeyValues ...interface{}) {
	fields, err := log.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		s.LogFields(log.Error(err), log.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

// SetBaggageItem implements opentracing.Span.
func (s *Span) SetBaggageItem(restrictedKey, value string) opentracing.Span {
	s.span.SetBaggageItem(restrictedKey, value)
	return s
}

// BaggageItem implements opentracing.Span.
func (s *Span) BaggageItem(restrictedKey string) string {
	v, _ := s.span.BaggageItem(restrictedKey)
	return v
}

// Tracer implements opentracing.Span.
func (s *Span) Tracer() opentracing.Tracer {
	return s.tracer
}

// LogEvent is deprecated in opentracing; kept for the interface.
func (s *Span) LogEvent(event string) {
	s.span.Log(map[string]any{jaegerz.LogFieldEvent: event})
}

// LogEventWithPayload is deprecated in opentracing; kept for the interface.
func (s *Span) LogEventWithPayload(event string, payload interface{}) {
	s.span.Log(map[string]any{jaegerz.LogFieldEvent: event, "payload": payload})
}

// Log is deprecated in opentracing; kept for the interface.
func (s *Span) Log(data opentracing.LogData) {
	record := data.ToLogRecord()
	s.span.LogAt(record.Timestamp, fieldsToMap(record.Fields))
}

func fieldsToMap(fields []log.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key()] = f.Value()
	}
	return out
}

// normalizeTag maps a tag value onto the types spans store: string, int64,
// float64 or bool. Anything else is formatted.
func normalizeTag(value interface{}) any {
	switch v := value.(type) {
	case string, int64, float64, bool:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint:
		return unsignedTag(uint64(v))
	case uint64:
		return unsignedTag(v)
	case float32:
		return float64(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// unsignedTag keeps v numeric while it fits in an int64.
func unsignedTag(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}
