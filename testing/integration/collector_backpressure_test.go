package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/jaegerz"
)

// TestChannelSaturation floods a small asynchronous collector. Every span
// is either buffered or counted as dropped; none vanish.
func TestChannelSaturation(t *testing.T) {
	collector := jaegerz.NewCollector("small", 10)
	tracer := jaegerz.New("test-service", jaegerz.WithReporter(collector))

	const total = 2000
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/10; i++ {
				_, span := tracer.StartSpan(context.Background(), "flood")
				span.Finish()
			}
		}()
	}
	wg.Wait()

	// Closing the tracer closes the collector, which drains its channel.
	tracer.Close()

	buffered := collector.Count()
	dropped := collector.DroppedCount()
	if int64(buffered)+dropped != total {
		t.Errorf("Span accounting broken: buffered=%d dropped=%d total=%d", buffered, dropped, total)
	}
	t.Logf("buffered=%d dropped=%d", buffered, dropped)
}

// TestCollectorShutdownUnderLoad closes the tracer while producers are
// still finishing spans. Nothing panics and late spans are not reported.
func TestCollectorShutdownUnderLoad(t *testing.T) {
	collector := jaegerz.NewCollector("shutdown", 100)
	tracer := jaegerz.New("test-service", jaegerz.WithReporter(collector))

	var produced atomic.Int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, span := tracer.StartSpan(context.Background(), "busy")
				span.Finish()
				produced.Add(1)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	tracer.Close()
	close(stop)
	wg.Wait()

	if produced.Load() == 0 {
		t.Fatal("Producers never ran")
	}

	before := collector.Count()
	_, late := tracer.StartSpan(context.Background(), "late")
	late.Finish()
	if collector.Count() != before {
		t.Error("Span finished after Close should not be buffered")
	}
}

// TestCompositeReportersCompetition checks two collectors behind one
// composite reporter see the same spans independently.
func TestCompositeReportersCompetition(t *testing.T) {
	fast := NewMockCollector(t, "fast", 1000)
	slow := jaegerz.NewCollector("slow", 5)

	tracer := jaegerz.New("test-service", jaegerz.WithReporter(jaegerz.NewCompositeReporter(fast, slow)))

	const total = 500
	for i := 0; i < total; i++ {
		_, span := tracer.StartSpan(context.Background(), fmt.Sprintf("op-%d", i%5))
		span.Finish()
	}
	tracer.Close()

	fast.AssertSpanCount(total)
	if int64(slow.Count())+slow.DroppedCount() != total {
		t.Errorf("Slow collector lost spans: buffered=%d dropped=%d", slow.Count(), slow.DroppedCount())
	}
}

// TestCollectorResetUnderLoad resets while spans arrive.
func TestCollectorResetUnderLoad(t *testing.T) {
	tracer, collector := NewTracedService(t, "test-service")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_, span := tracer.StartSpan(context.Background(), "op")
			span.Finish()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			collector.Reset()
			time.Sleep(100 * time.Microsecond)
		}
	}()
	wg.Wait()

	collector.Reset()
	if collector.Count() != 0 || collector.DroppedCount() != 0 {
		t.Error("Reset should clear buffer and drop count")
	}

	_, span := tracer.StartSpan(context.Background(), "after-reset")
	span.Finish()
	collector.AssertSpanCount(1)
}

// TestWorkerPoolBackpressure blocks the async handlers and checks the
// tracer counts what the pool cannot accept, while the reporter still gets
// every span.
func TestWorkerPoolBackpressure(t *testing.T) {
	tracer, collector := NewTracedService(t, "test-service")
	if err := tracer.EnableWorkerPool(1, 2); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	var handled atomic.Int64
	tracer.OnSpanCompleteAsync(func(jaegerz.Span) {
		<-release
		handled.Add(1)
	})

	const total = 20
	for i := 0; i < total; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		span.Finish()
	}

	dropped := tracer.DroppedSpans()
	if dropped == 0 {
		t.Error("Expected drops with a blocked single worker")
	}
	if dropped > total-1 {
		t.Errorf("Dropped %d of %d; the pool should accept some", dropped, total)
	}

	close(release)
	collector.AssertSpanCount(total)

	deadline := time.Now().Add(time.Second)
	for handled.Load()+int64(dropped) < total && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := handled.Load() + int64(dropped); got != total {
		t.Errorf("handled+dropped = %d, expected %d", got, total)
	}
}
