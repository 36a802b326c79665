package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/jaegerz"
)

// MockCollector wraps a real collector with test utilities.
// Collection is synchronous so spans are visible as soon as they finish.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []jaegerz.Span
	*jaegerz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := jaegerz.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
		exported:  make([]jaegerz.Span, 0),
	}
}

// NewTracedService creates a tracer for service that reports into a fresh
// MockCollector. The tracer is closed when the test ends.
func NewTracedService(t *testing.T, service string, opts ...jaegerz.Option) (*jaegerz.Tracer, *MockCollector) {
	t.Helper()
	collector := NewMockCollector(t, service, 1000)
	tracer := jaegerz.New(service, append([]jaegerz.Option{jaegerz.WithReporter(collector)}, opts...)...)
	t.Cleanup(tracer.Close)
	return tracer, collector
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []jaegerz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span seen so far, exported or not.
func (m *MockCollector) GetAll() []jaegerz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]jaegerz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans have been seen.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []jaegerz.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies the number of spans seen so far.
func (m *MockCollector) AssertSpanCount(expected int) {
	if spans := m.GetAll(); len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// AssertSpanNamed returns the span called name, failing the test if absent.
func (m *MockCollector) AssertSpanNamed(name string) *jaegerz.Span {
	spans := m.GetAll()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func (m *MockCollector) AssertParentChild(parentName, childName string) {
	parent := m.AssertSpanNamed(parentName)
	child := m.AssertSpanNamed(childName)
	if parent == nil || child == nil {
		return
	}
	AssertChildOf(m.t, parent, child)
}

// AssertChildOf checks that child continues parent's trace one level down.
// The spans may come from different collectors.
func AssertChildOf(t *testing.T, parent, child *jaegerz.Span) {
	t.Helper()
	if child.ParentID() != parent.SpanID() {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parent.Name, child.Name, child.ParentID(), parent.SpanID())
	}
	if child.TraceID() != parent.TraceID() {
		t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID(), child.TraceID())
	}
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     jaegerz.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from a flat span list. Spans whose parent
// is not in the list are roots.
func BuildSpanTree(spans []jaegerz.Span) []*SpanTree {
	nodeMap := make(map[jaegerz.SpanID]*SpanTree, len(spans))
	roots := make([]*SpanTree, 0)

	for i := range spans {
		nodeMap[spans[i].SpanID()] = &SpanTree{
			Span:     spans[i],
			Children: make([]*SpanTree, 0),
		}
	}

	for i := range spans {
		node := nodeMap[spans[i].SpanID()]
		if parent, exists := nodeMap[spans[i].ParentID()]; exists && spans[i].ParentID() != 0 {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s [%s] (%.2fms)\n",
		indent, node.Span.Name, node.Span.Context, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// MockService simulates a downstream service with its own tracer. Calls
// cross a simulated wire: the caller's context is injected into a text map
// and the service joins it with StartServerSpan.
type MockService struct {
	tracer       *jaegerz.Tracer
	next         *MockService
	name         string
	latency      time.Duration
	mu           sync.Mutex
	requestCount int
	failNext     bool
}

// NewMockService creates a simulated service.
func NewMockService(name string, tracer *jaegerz.Tracer) *MockService {
	return &MockService{
		name:   name,
		tracer: tracer,
	}
}

// SetLatency configures response time.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// FailNext makes the next call fail.
func (m *MockService) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// Then chains a downstream service, called from inside this one.
func (m *MockService) Then(next *MockService) *MockService {
	m.next = next
	return next
}

// RequestCount returns how many calls the service has handled.
func (m *MockService) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Call sends operation to the service. The span active in ctx, if any, is
// propagated using caller's tracer.
func (m *MockService) Call(ctx context.Context, caller *jaegerz.Tracer, operation string) error {
	headers := jaegerz.TextMapCarrier{}
	if span := jaegerz.SpanFromContext(ctx); span != nil {
		if err := caller.Inject(span.SpanContext(), jaegerz.HTTPHeaders, headers); err != nil {
			return err
		}
	}
	return m.serve(headers, operation)
}

func (m *MockService) serve(headers jaegerz.TextMapCarrier, operation string) error {
	m.mu.Lock()
	m.requestCount++
	count := m.requestCount
	latency := m.latency
	shouldFail := m.failNext
	m.failNext = false
	m.mu.Unlock()

	ctx, scope := m.tracer.StartServerSpan(context.Background(), headers, fmt.Sprintf("%s.%s", m.name, operation))
	defer scope.Close()

	span := scope.Span()
	span.SetTag("service", m.name)
	span.SetIntTag("request_id", int64(count))

	if latency > 0 {
		time.Sleep(latency)
	}

	if shouldFail {
		span.SetBoolTag(jaegerz.TagError, true)
		span.LogKV(jaegerz.LogFieldEvent, "error", jaegerz.LogFieldMessage, "simulated failure")
		return fmt.Errorf("%s: simulated failure", m.name)
	}

	if m.next != nil {
		if err := m.next.Call(ctx, m.tracer, operation); err != nil {
			span.SetBoolTag(jaegerz.TagError, true)
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}

	return nil
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *jaegerz.Span
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *jaegerz.Span) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies tag exists with value.
func (m *SpanMatcher) HasTag(key jaegerz.Tag, value any) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Tags[key]; !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.Name, key)
	} else if actual != value {
		m.t.Errorf("Span %s tag '%s': expected '%v', got '%v'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasBaggage verifies the span carried a baggage item.
func (m *SpanMatcher) HasBaggage(key, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, ok := m.span.Context.BaggageItem(key); !ok || actual != value {
		m.t.Errorf("Span %s baggage '%s': expected '%s', got '%s'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parentID jaegerz.SpanID) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID() != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s",
			m.span.Name, parentID, m.span.ParentID())
	}
	return m
}

// IsRoot verifies the span started a trace.
func (m *SpanMatcher) IsRoot() *SpanMatcher {
	return m.HasParent(0)
}

// DurationBetween verifies duration is in range.
func (m *SpanMatcher) DurationBetween(minDur, maxDur time.Duration) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.Duration < minDur || m.span.Duration > maxDur {
		m.t.Errorf("Span %s duration %v not in range [%v, %v]",
			m.span.Name, m.span.Duration, minDur, maxDur)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans  []jaegerz.Span
	byID   map[jaegerz.SpanID]jaegerz.Span
	byName map[string][]jaegerz.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans. Spans from
// several collectors may be combined.
func NewTraceAnalyzer(spans ...[]jaegerz.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		byID:   make(map[jaegerz.SpanID]jaegerz.Span),
		byName: make(map[string][]jaegerz.Span),
	}

	for _, group := range spans {
		a.spans = append(a.spans, group...)
	}
	for i := range a.spans {
		span := a.spans[i]
		a.byID[span.SpanID()] = span
		a.byName[span.Name] = append(a.byName[span.Name], span)
	}

	a.trees = BuildSpanTree(a.spans)
	return a
}

// Span retrieves a span by ID.
func (a *TraceAnalyzer) Span(spanID jaegerz.SpanID) (jaegerz.Span, bool) {
	span, exists := a.byID[spanID]
	return span, exists
}

// SpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) SpansByName(name string) []jaegerz.Span {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// TraceIDs returns the distinct trace IDs seen.
func (a *TraceAnalyzer) TraceIDs() map[jaegerz.TraceID]int {
	ids := make(map[jaegerz.TraceID]int)
	for i := range a.spans {
		ids[a.spans[i].TraceID()]++
	}
	return ids
}

// VerifyChain checks that the named spans form a parent-child chain within
// one trace.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	if len(names) < 2 {
		return fmt.Errorf("chain requires at least 2 spans")
	}

	var prev *jaegerz.Span
	for i, name := range names {
		spans := a.SpansByName(name)
		if len(spans) == 0 {
			return fmt.Errorf("span '%s' not found", name)
		}
		span := spans[0]

		if prev != nil {
			if span.ParentID() != prev.SpanID() {
				return fmt.Errorf("broken chain: %s is not child of %s", name, names[i-1])
			}
			if span.TraceID() != prev.TraceID() {
				return fmt.Errorf("broken chain: %s left trace %s", name, prev.TraceID())
			}
		}
		prev = &span
	}

	return nil
}
