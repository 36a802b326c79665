package jaegerz

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Format identifies a propagation encoding.
type Format int

const (
	// TextMap writes values as-is into a string map.
	TextMap Format = iota
	// HTTPHeaders URL-encodes values and matches keys case-insensitively.
	HTTPHeaders
)

// Default header names of the Jaeger wire format.
const (
	TraceContextHeaderName   = "uber-trace-id"
	TraceBaggageHeaderPrefix = "uberctx-"
	JaegerBaggageHeader      = "jaeger-baggage"
)

// TextMapWriter is the inject side of a string-keyed carrier.
type TextMapWriter interface {
	Set(key, val string)
}

// TextMapReader is the extract side of a string-keyed carrier. Iteration
// stops at the first error returned by handler.
type TextMapReader interface {
	ForeachKey(handler func(key, val string) error) error
}

// TextMapCarrier adapts a plain map to both carrier interfaces.
type TextMapCarrier map[string]string

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts http.Header to both carrier interfaces.
type HTTPHeadersCarrier http.Header

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Propagator moves a SpanContext in and out of a carrier.
// Extract reports false when the carrier holds no usable context.
type Propagator interface {
	Inject(sc SpanContext, carrier any) error
	Extract(carrier any) (SpanContext, bool)
}

// HeadersConfig names the carrier keys. Empty fields take the defaults.
type HeadersConfig struct {
	TraceContextHeaderName   string `yaml:"traceContextHeaderName"`
	TraceBaggageHeaderPrefix string `yaml:"traceBaggageHeaderPrefix"`
	JaegerBaggageHeader      string `yaml:"jaegerBaggageHeader"`
}

// ApplyDefaults fills empty header names.
func (c *HeadersConfig) ApplyDefaults() *HeadersConfig {
	if c.TraceContextHeaderName == "" {
		c.TraceContextHeaderName = TraceContextHeaderName
	}
	if c.TraceBaggageHeaderPrefix == "" {
		c.TraceBaggageHeaderPrefix = TraceBaggageHeaderPrefix
	}
	if c.JaegerBaggageHeader == "" {
		c.JaegerBaggageHeader = JaegerBaggageHeader
	}
	return c
}

// TextMapPropagator implements the Jaeger text-map wire format.
type TextMapPropagator struct {
	headers     HeadersConfig
	urlEncoding bool
}

// NewTextMapPropagator creates a propagator for the TextMap format.
func NewTextMapPropagator(headers HeadersConfig) *TextMapPropagator {
	return &TextMapPropagator{headers: *headers.ApplyDefaults()}
}

// NewHTTPHeaderPropagator creates a propagator for the HTTPHeaders format.
func NewHTTPHeaderPropagator(headers HeadersConfig) *TextMapPropagator {
	return &TextMapPropagator{headers: *headers.ApplyDefaults(), urlEncoding: true}
}

// errDecoding marks a present but unusable trace header.
type errDecoding struct{ err error }

func (e errDecoding) Error() string { return e.err.Error() }

// Inject implements Propagator.
func (p *TextMapPropagator) Inject(sc SpanContext, carrier any) error {
	w, ok := carrier.(TextMapWriter)
	if !ok {
		return ErrInvalidCarrier
	}
	if !sc.IsValid() {
		return ErrInvalidSpanContext
	}

	// The trace header goes out raw in both formats; only baggage is escaped.
	w.Set(p.headers.TraceContextHeaderName, sc.String())
	sc.ForeachBaggageItem(func(k, v string) bool {
		w.Set(p.headers.TraceBaggageHeaderPrefix+k, p.encode(v))
		return true
	})
	return nil
}

// Extract implements Propagator.
func (p *TextMapPropagator) Extract(carrier any) (SpanContext, bool) {
	sc, err := p.extract(carrier)
	return sc, err == nil
}

// extract distinguishes decoding failures from absent context so the
// tracer can count the former.
func (p *TextMapPropagator) extract(carrier any) (SpanContext, error) {
	r, ok := carrier.(TextMapReader)
	if !ok {
		return SpanContext{}, ErrInvalidCarrier
	}

	traceHeader := strings.ToLower(p.headers.TraceContextHeaderName)
	baggagePrefix := strings.ToLower(p.headers.TraceBaggageHeaderPrefix)
	jaegerBaggage := strings.ToLower(p.headers.JaegerBaggageHeader)

	var (
		sc      SpanContext
		found   bool
		baggage map[string]string
	)
	err := r.ForeachKey(func(rawKey, value string) error {
		key := strings.ToLower(rawKey)
		switch {
		case key == traceHeader:
			decoded, err := p.decode(value)
			if err != nil {
				return errDecoding{err}
			}
			if sc, err = ContextFromString(decoded); err != nil {
				return errDecoding{err}
			}
			found = true
		case key == jaegerBaggage:
			decoded, err := p.decode(value)
			if err != nil {
				return nil
			}
			for k, v := range parseCommaSeparatedMap(decoded) {
				baggage = setBaggage(baggage, k, v)
			}
		case strings.HasPrefix(key, baggagePrefix):
			decoded, err := p.decode(value)
			if err != nil {
				return nil
			}
			// Header names lose their case in transit; text maps keep it.
			name := rawKey[len(baggagePrefix):]
			if p.urlEncoding {
				name = key[len(baggagePrefix):]
			}
			baggage = setBaggage(baggage, name, decoded)
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, err
	}
	if !found {
		return SpanContext{}, errNotFound
	}

	sc.baggage = baggage
	return sc, nil
}

func (p *TextMapPropagator) encode(v string) string {
	if !p.urlEncoding {
		return v
	}
	return url.QueryEscape(v)
}

func (p *TextMapPropagator) decode(v string) (string, error) {
	if !p.urlEncoding {
		return v, nil
	}
	return url.QueryUnescape(v)
}

var errNotFound = errors.New("jaegerz: span context not found")

func setBaggage(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[k] = v
	return m
}

// parseCommaSeparatedMap reads "k1=v1, k2=v2". Entries without "=" are skipped.
func parseCommaSeparatedMap(value string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
