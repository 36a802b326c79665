package jaegerz

import (
	"sync"
	"testing"
	"time"

	"github.com/eapache/queue"
)

func testSpan(spanID uint64, name string) Span {
	return Span{
		Context: NewSpanContext(TraceID{Low: 0xabc}, SpanID(spanID), 0, true, nil),
		Name:    name,
	}
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector("test-collector", 100)
	defer collector.Close()

	if collector.Name() != "test-collector" {
		t.Errorf("Expected name 'test-collector', got %s", collector.Name())
	}

	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans initially, got %d", collector.Count())
	}

	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped spans initially, got %d", collector.DroppedCount())
	}
}

func TestCollectorBasicCollection(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true) // Enable sync for deterministic testing.
	defer collector.Close()

	span := testSpan(1, "test-operation")
	collector.Collect(&span)

	if collector.Count() != 1 {
		t.Errorf("Expected 1 span, got %d", collector.Count())
	}

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 exported span, got %d", len(spans))
	}

	if spans[0].SpanID() != 1 {
		t.Errorf("Expected span ID 1, got %s", spans[0].SpanID())
	}

	// After export, collector should be empty.
	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans after export, got %d", collector.Count())
	}
}

func TestCollectorReportImplementsReporter(t *testing.T) {
	var reporter Reporter = NewCollector("reporter", 10)
	collector := reporter.(*Collector)
	collector.SetSyncMode(true)
	defer reporter.Close()

	reporter.Report(testSpan(7, "reported"))

	spans := collector.Export()
	if len(spans) != 1 || spans[0].Name != "reported" {
		t.Errorf("Expected the reported span, got %+v", spans)
	}
}

func TestCollectorBackpressure(t *testing.T) {
	// No consumer goroutine, so the channel fills deterministically.
	collector := &Collector{
		name:    "test",
		spans:   queue.New(),
		spansCh: make(chan Span, 2),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	for i := 0; i < 10; i++ {
		span := testSpan(uint64(i+1), "test-operation")
		collector.Collect(&span)
	}

	if dropped := collector.DroppedCount(); dropped != 8 {
		t.Errorf("Expected 8 dropped spans, got %d", dropped)
	}
}

func TestCollectorNilSpan(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	collector.Collect(nil)

	if collector.DroppedCount() != 1 {
		t.Errorf("Expected nil span to count as dropped, got %d", collector.DroppedCount())
	}
}

func TestCollectorBufferGrowth(t *testing.T) {
	collector := NewCollector("test", 100)
	collector.SetSyncMode(true)
	defer collector.Close()

	numSpans := 500
	for i := 0; i < numSpans; i++ {
		span := testSpan(uint64(i+1), "test-operation")
		collector.Collect(&span)
	}

	if collector.Count() != numSpans {
		t.Errorf("Expected %d spans, got %d", numSpans, collector.Count())
	}

	spans := collector.Export()
	if len(spans) != numSpans {
		t.Fatalf("Expected %d exported spans, got %d", numSpans, len(spans))
	}

	// Export preserves arrival order.
	for i, span := range spans {
		if span.SpanID() != SpanID(i+1) {
			t.Fatalf("Expected span %d at position %d, got %s", i+1, i, span.SpanID())
		}
	}
}

func TestCollectorExportCopy(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	originalSpan := testSpan(1, "operation")
	originalSpan.Tags = map[Tag]any{"key": "value"}
	originalSpan.Logs = []LogRecord{{Fields: map[string]any{"event": "original"}}}

	collector.Collect(&originalSpan)

	exported := collector.Export()
	if len(exported) != 1 {
		t.Fatalf("Expected 1 exported span, got %d", len(exported))
	}

	// Modify the exported span.
	exported[0].Tags["key"] = "modified"
	exported[0].Logs[0].Fields["event"] = "modified"

	if originalSpan.Tags["key"] != "value" {
		t.Errorf("Expected original tag untouched, got %v", originalSpan.Tags["key"])
	}
	if originalSpan.Logs[0].Fields["event"] != "original" {
		t.Errorf("Expected original log untouched, got %v", originalSpan.Logs[0].Fields["event"])
	}

	// Mutating the source after collection does not reach the buffer.
	collector.Collect(&originalSpan)
	originalSpan.Tags["key"] = "late"

	exported2 := collector.Export()
	if len(exported2) != 1 {
		t.Fatalf("Expected 1 exported span in second export, got %d", len(exported2))
	}
	if exported2[0].Tags["key"] != "value" {
		t.Errorf("Expected tag value 'value', got %v", exported2[0].Tags["key"])
	}
}

func TestCollectorReset(t *testing.T) {
	collector := NewCollector("test", 10)
	collector.SetSyncMode(true)
	defer collector.Close()

	for i := 0; i < 5; i++ {
		span := testSpan(uint64(i+1), "op")
		collector.Collect(&span)
	}

	if collector.Count() != 5 {
		t.Errorf("Expected 5 spans before reset, got %d", collector.Count())
	}

	collector.droppedCount.Store(10)

	collector.Reset()

	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans after reset, got %d", collector.Count())
	}

	if collector.DroppedCount() != 0 {
		t.Errorf("Expected 0 dropped count after reset, got %d", collector.DroppedCount())
	}
}

func TestCollectorShutdown(t *testing.T) {
	collector := NewCollector("test", 10)

	for i := 0; i < 3; i++ {
		span := testSpan(uint64(i+1), "op")
		collector.Collect(&span)
	}

	// Close drains the channel before stopping.
	collector.Close()

	spans := collector.Export()
	if len(spans) != 3 {
		t.Errorf("Expected 3 spans after shutdown, got %d", len(spans))
	}

	// New spans are dropped once closed.
	newSpan := testSpan(99, "op")
	collector.Collect(&newSpan)

	if collector.Count() != 0 {
		t.Errorf("Expected 0 spans after adding to closed collector, got %d", collector.Count())
	}
	if collector.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped span after close, got %d", collector.DroppedCount())
	}

	// Second close is a no-op.
	collector.Close()
}

func TestCollectorConcurrentCollection(t *testing.T) {
	collector := NewCollector("test", 100)
	defer collector.Close()

	var wg sync.WaitGroup
	numGoroutines := 50
	spansPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < spansPerGoroutine; j++ {
				span := testSpan(uint64(n*spansPerGoroutine+j+1), "operation")
				collector.Collect(&span)
			}
		}(i)
	}

	wg.Wait()

	// Give time for all spans to be processed by async goroutine.
	time.Sleep(100 * time.Millisecond)

	expectedTotal := numGoroutines * spansPerGoroutine
	actualCount := collector.Count()
	droppedCount := collector.DroppedCount()
	totalProcessed := int(droppedCount) + actualCount

	if totalProcessed != expectedTotal {
		t.Errorf("Expected %d total spans (collected + dropped), got %d (collected: %d, dropped: %d)",
			expectedTotal, totalProcessed, actualCount, droppedCount)
	}
}

func TestCollectorConcurrentExport(t *testing.T) {
	collector := NewCollector("test", 1000)
	collector.SetSyncMode(true)
	defer collector.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	exported := 0

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				span := testSpan(uint64(n*20+j+1), "op")
				collector.Collect(&span)
			}
		}(i)
		go func() {
			defer wg.Done()
			spans := collector.Export()
			mu.Lock()
			exported += len(spans)
			mu.Unlock()
		}()
	}

	wg.Wait()
	exported += len(collector.Export())

	if exported != 200 {
		t.Errorf("Expected 200 spans across exports, got %d", exported)
	}
}

func TestSetSyncMode(t *testing.T) {
	collector := NewCollector("test", 10)
	defer collector.Close()

	// Async mode (default).
	span1 := testSpan(1, "async-span")
	collector.Collect(&span1)

	time.Sleep(10 * time.Millisecond)

	if collector.Count() != 1 {
		t.Errorf("Expected 1 span in async mode, got %d", collector.Count())
	}

	collector.Export()

	collector.SetSyncMode(true)

	span2 := testSpan(2, "sync-span")
	collector.Collect(&span2)

	// Should be immediately available.
	if collector.Count() != 1 {
		t.Errorf("Expected 1 span in sync mode (immediate), got %d", collector.Count())
	}

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 exported span, got %d", len(spans))
	}

	if spans[0].Name != "sync-span" {
		t.Errorf("Expected span 'sync-span', got %s", spans[0].Name)
	}
}
