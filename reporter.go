package jaegerz

import (
	"go.uber.org/zap"
)

// Reporter receives finished, sampled spans. Report is called once per span
// and may be called concurrently for independent spans. Close flushes any
// buffered spans and is called by Tracer.Close.
type Reporter interface {
	Report(span Span)
	Close()
}

// NullReporter discards every span.
type NullReporter struct{}

// NewNullReporter creates a reporter that drops spans.
func NewNullReporter() NullReporter {
	return NullReporter{}
}

// Report implements Reporter.
func (NullReporter) Report(Span) {}

// Close implements Reporter.
func (NullReporter) Close() {}

// LoggingReporter writes every span to a zap logger.
type LoggingReporter struct {
	logger *zap.Logger
}

// NewLoggingReporter creates a reporter that logs spans at Info.
func NewLoggingReporter(logger *zap.Logger) *LoggingReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingReporter{logger: logger}
}

// Report implements Reporter.
func (r *LoggingReporter) Report(span Span) {
	fields := []zap.Field{
		zap.Stringer("context", span.Context),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.Int("logs", len(span.Logs)),
	}
	if span.Process != nil {
		fields = append(fields, zap.String("service", span.Process.Service))
	}
	if len(span.Tags) > 0 {
		fields = append(fields, zap.Any("tags", span.Tags))
	}
	r.logger.Info("Span reported", fields...)
}

// Close flushes the logger.
func (r *LoggingReporter) Close() {
	_ = r.logger.Sync()
}

// CompositeReporter fans spans out to several reporters in order.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a reporter delegating to reporters.
// Nil entries are skipped.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	c := &CompositeReporter{reporters: make([]Reporter, 0, len(reporters))}
	for _, r := range reporters {
		if r != nil {
			c.reporters = append(c.reporters, r)
		}
	}
	return c
}

// Report implements Reporter.
func (c *CompositeReporter) Report(span Span) {
	for _, r := range c.reporters {
		r.Report(span)
	}
}

// Close implements Reporter.
func (c *CompositeReporter) Close() {
	for _, r := range c.reporters {
		r.Close()
	}
}
