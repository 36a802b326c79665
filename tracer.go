package jaegerz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Process tag keys added to every tracer.
const (
	TracerHostnameTagKey = "hostname"
	TracerUUIDTagKey     = "client-uuid"
	TracerVersionTagKey  = "jaegerz.version"
)

// SpanHandler is called when a sampled span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithSampler sets the root sampling policy. Defaults to sampling everything.
func WithSampler(sampler Sampler) Option {
	return func(t *Tracer) {
		if sampler != nil {
			t.sampler = sampler
		}
	}
}

// WithReporter sets where finished spans go. Defaults to NullReporter.
func WithReporter(reporter Reporter) Option {
	return func(t *Tracer) {
		if reporter != nil {
			t.reporter = reporter
		}
	}
}

// WithLogger sets the tracer's diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the tracer's counters.
func WithMetrics(metrics *Metrics) Option {
	return func(t *Tracer) {
		if metrics != nil {
			t.metrics = metrics
		}
	}
}

// WithClock injects the clock used for span timestamps.
// Enables deterministic testing with a fake clock.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// With64BitTraceIDs makes new traces use 64-bit ids.
func With64BitTraceIDs() Option {
	return func(t *Tracer) {
		t.gen128Bit = false
	}
}

// WithTag adds a process tag reported with every span.
func WithTag(key Tag, value any) Option {
	return func(t *Tracer) {
		t.tags[key] = value
	}
}

// WithPropagator registers p for format, replacing the default.
func WithPropagator(format Format, p Propagator) Option {
	return func(t *Tracer) {
		if p != nil {
			t.propagators[format] = p
		}
	}
}

// WithHeaders renames the carrier keys used by the default propagators.
func WithHeaders(headers HeadersConfig) Option {
	return func(t *Tracer) {
		t.propagators[TextMap] = NewTextMapPropagator(headers)
		t.propagators[HTTPHeaders] = NewHTTPHeaderPropagator(headers)
	}
}

// Tracer creates spans and moves their context across process boundaries.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	propagators  map[Format]Propagator
	tags         map[Tag]any
	process      *Process
	sampler      Sampler
	reporter     Reporter
	logger       *zap.Logger
	metrics      *Metrics
	workers      *workerPool
	traceIDPool  atomic.Pointer[IDPool]
	spanIDPool   atomic.Pointer[IDPool]
	clock        clockz.Clock
	service      string
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
	closed       atomic.Bool
	gen128Bit    bool
}

// New creates a tracer for service.
// Uses the real clock, samples every trace and discards finished spans
// unless options say otherwise.
func New(service string, opts ...Option) *Tracer {
	t := &Tracer{
		service:  service,
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		sampler:  NewConstSampler(true),
		reporter: NewNullReporter(),
		logger:   zap.NewNop(),
		propagators: map[Format]Propagator{
			TextMap:     NewTextMapPropagator(HeadersConfig{}),
			HTTPHeaders: NewHTTPHeaderPropagator(HeadersConfig{}),
		},
		tags:      make(map[Tag]any),
		gen128Bit: true,
	}

	t.tags[TracerVersionTagKey] = "Go-" + Version
	t.tags[TracerUUIDTagKey] = uuid.NewString()
	if hostname, err := os.Hostname(); err == nil {
		t.tags[TracerHostnameTagKey] = hostname
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.metrics == nil {
		t.metrics = NewMetrics(nil, "")
	}
	t.process = &Process{Service: service, Tags: t.tags}

	return t
}

// ServiceName returns the service the tracer reports as.
func (t *Tracer) ServiceName() string {
	return t.service
}

// Tags returns a copy of the tracer's process tags.
func (t *Tracer) Tags() map[Tag]any {
	out := make(map[Tag]any, len(t.tags))
	for k, v := range t.tags {
		out[k] = v
	}
	return out
}

// ensureIDPools starts the ID pools on first use. A closed tracer never
// starts them, so no refill goroutine outlives Close.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		if t.closed.Load() {
			return
		}
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool.Store(NewIDPool(poolSize, CryptoIDSource))
		t.spanIDPool.Store(NewIDPool(poolSize, CryptoIDSource))
	})
}

// drawID takes an id from pool, or draws one directly when the pool was
// never started.
func (t *Tracer) drawID(pool *atomic.Pointer[IDPool]) uint64 {
	t.ensureIDPools()
	if p := pool.Load(); p != nil {
		return p.Get()
	}
	return randomID()
}

// generateTraceID mints the id of a new trace.
func (t *Tracer) generateTraceID() TraceID {
	id := TraceID{Low: t.drawID(&t.traceIDPool)}
	if t.gen128Bit {
		id.High = t.drawID(&t.traceIDPool)
	}
	return id
}

// generateSpanID creates a new span ID using the optimized ID pool.
func (t *Tracer) generateSpanID() SpanID {
	return SpanID(t.drawID(&t.spanIDPool))
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.panicHook = hook
}

// StartSpan creates a new span and returns it with a context in which it is
// active. If ctx already carries a span, the new span is its child.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	span := t.BuildSpan(operation).Start(ctx)
	return ContextWithSpan(ctx, span), span
}

// ActiveSpan returns the span active in ctx, or nil.
func (*Tracer) ActiveSpan(ctx context.Context) *ActiveSpan {
	return SpanFromContext(ctx)
}

// Inject writes sc into carrier using format.
func (t *Tracer) Inject(sc SpanContext, format Format, carrier any) error {
	p, ok := t.propagators[format]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	return p.Inject(sc, carrier)
}

// decodingExtractor separates malformed input from missing input.
type decodingExtractor interface {
	extract(carrier any) (SpanContext, error)
}

// Extract reads a span context from carrier. It reports false when the
// carrier holds no context, holds a malformed one, or cannot be read.
// Those are expected conditions and never errors.
func (t *Tracer) Extract(format Format, carrier any) (sc SpanContext, ok bool) {
	p, found := t.propagators[format]
	if !found {
		return SpanContext{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("carrier panicked during extract", zap.Any("panic", r))
			sc, ok = SpanContext{}, false
		}
	}()

	d, isDecoding := p.(decodingExtractor)
	if !isDecoding {
		return p.Extract(carrier)
	}

	sc, err := d.extract(carrier)
	if err != nil {
		var decodeErr errDecoding
		if errors.As(err, &decodeErr) {
			t.metrics.DecodingErrors.Inc()
			t.logger.Debug("malformed span context", zap.Error(err))
		}
		return SpanContext{}, false
	}
	return sc, true
}

// reportSpan hands a finished span to the reporter and handlers.
func (t *Tracer) reportSpan(span Span) {
	if !span.Context.IsSampled() || t.closed.Load() {
		return
	}

	t.metrics.FinishedSpans.Inc()
	t.safeReport(span)
	t.executeHandlers(span)
}

func (t *Tracer) safeReport(span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.ReporterSpans.WithLabelValues("panic").Inc()
			t.logger.Error("reporter panicked",
				zap.Stringer("context", span.Context),
				zap.Any("panic", r),
			)
		}
	}()
	t.reporter.Report(span)
	t.metrics.ReporterSpans.WithLabelValues("ok").Inc()
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			// Each async handler gets its own copy of the maps.
			spanCopy := span.clone()
			if t.workers != nil {
				if !t.workers.submit(func() { t.safeCall(entry, spanCopy) }) {
					t.metrics.ReporterSpans.WithLabelValues("dropped").Inc()
					t.logger.Warn("handler queue full, dropping span",
						zap.Stringer("context", span.Context),
						zap.Uint64("handler_id", entry.id),
					)
				}
			} else {
				go t.safeCall(entry, spanCopy)
			}
		} else {
			t.safeCall(h, span)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Any("panic", r),
			)
			if t.panicHook != nil {
				t.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer: stops handlers and workers, then flushes and
// closes the reporter. Spans finished afterwards are not reported.
// Safe to call more than once.
func (t *Tracer) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks. The pool stays attached; late
	// submissions are queued but never run.
	if t.workers != nil {
		t.workers.shutdown()
	}

	t.reporter.Close()

	// Close ID pools. Do waits out a start in progress and blocks later ones.
	t.idPoolOnce.Do(func() {})
	if pool := t.traceIDPool.Load(); pool != nil {
		pool.Close()
	}
	if pool := t.spanIDPool.Load(); pool != nil {
		pool.Close()
	}
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Accepted tasks still run.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (w *workerPool) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
