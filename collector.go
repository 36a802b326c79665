package jaegerz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Collector is an in-memory Reporter that buffers finished spans for export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        *queue.Queue
	spansCh      chan Span
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		spans:   queue.New(),
		spansCh: make(chan Span, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.buffer(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.buffer(span)
		}
	}
}

// Close drains pending spans and stops the collector goroutine.
// Buffered spans stay available to Export. Safe to call more than once.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
	case <-time.After(100 * time.Millisecond):
		// Drain took too long; remaining spans are abandoned.
	}
}

// Report implements Reporter.
func (c *Collector) Report(span Span) {
	c.Collect(&span)
}

// Collect attempts to buffer a span with backpressure protection.
// If the internal channel is full, the span is dropped and the drop counter is incremented.
// In sync mode, spans are collected directly for deterministic testing.
func (c *Collector) Collect(span *Span) {
	if span == nil {
		c.droppedCount.Add(1)
		return
	}

	// Deep copy to prevent modifications after collection.
	spanCopy := span.clone()

	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode {
		c.buffer(spanCopy)
		return
	}

	select {
	case c.spansCh <- spanCopy:
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// buffer appends a span to the export queue.
func (c *Collector) buffer(span Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans.Add(span)
}

// Export returns all buffered spans and clears the internal buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.spans.Length()
	if n == 0 {
		return nil
	}

	result := make([]Span, 0, n)
	for c.spans.Length() > 0 {
		result = append(result, c.spans.Remove().(Span))
	}
	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spans.Length()
}

// DroppedCount returns the total number of spans dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered spans and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = queue.New()
	c.droppedCount.Store(0)
}
