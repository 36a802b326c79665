package jaegerz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultMetricsNamespace prefixes every tracer metric.
const DefaultMetricsNamespace = "jaegerz_tracer"

// Metrics holds the tracer's Prometheus counters.
type Metrics struct {
	// Span lifecycle
	StartedSpans  *prometheus.CounterVec
	FinishedSpans prometheus.Counter

	// Trace roots and joins
	Traces *prometheus.CounterVec

	// Propagation
	DecodingErrors prometheus.Counter

	// Reporter hand-off
	ReporterSpans *prometheus.CounterVec
}

// NewMetrics creates tracer metrics registered with reg. A nil registerer
// leaves them unregistered, which is what tracers without explicit metrics use.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		StartedSpans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "started_spans_total",
				Help:      "Number of spans started, by sampling decision",
			},
			[]string{"sampled"},
		),
		FinishedSpans: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finished_spans_total",
				Help:      "Number of sampled spans finished",
			},
		),
		Traces: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "traces_total",
				Help:      "Number of traces started locally or joined from a remote parent",
			},
			[]string{"state", "sampled"},
		),
		DecodingErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "span_context_decoding_errors_total",
				Help:      "Number of inbound trace headers that could not be decoded",
			},
		),
		ReporterSpans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reporter_spans_total",
				Help:      "Number of spans handed to the reporter, by result",
			},
			[]string{"result"},
		),
	}
}

func sampledLabel(sampled bool) string {
	if sampled {
		return "y"
	}
	return "n"
}

func (m *Metrics) spanStarted(sampled bool) {
	m.StartedSpans.WithLabelValues(sampledLabel(sampled)).Inc()
}

func (m *Metrics) tracesStarted(sampled bool) {
	m.Traces.WithLabelValues("started", sampledLabel(sampled)).Inc()
}

func (m *Metrics) tracesJoined(sampled bool) {
	m.Traces.WithLabelValues("joined", sampledLabel(sampled)).Inc()
}
