package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zoobzio/jaegerz"
	"github.com/zoobzio/jaegerz/internal/hello"
	"github.com/zoobzio/jaegerz/otbridge"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// helloStack is a running format service and a client pointed at it.
type helloStack struct {
	server       *httptest.Server
	client       *hello.Client
	clientTracer *jaegerz.Tracer
	clientSpans  *MockCollector
	serverSpans  *MockCollector
	out          *bytes.Buffer
}

func newHelloStack(t *testing.T, clientOpts ...jaegerz.Option) *helloStack {
	t.Helper()

	serverTracer, serverSpans := NewTracedService(t, "hello-server")
	server := httptest.NewServer(hello.NewRouter(serverTracer, nil, nil))
	t.Cleanup(server.Close)

	clientTracer, clientSpans := NewTracedService(t, "hello-world", clientOpts...)
	out := &bytes.Buffer{}

	return &helloStack{
		server:       server,
		client:       hello.NewClient(otbridge.New(clientTracer), out, hello.WithServerURL(server.URL)),
		clientTracer: clientTracer,
		clientSpans:  clientSpans,
		serverSpans:  serverSpans,
		out:          out,
	}
}

// TestHelloEndToEnd runs the full two-process flow and checks the trace
// shape across both services.
func TestHelloEndToEnd(t *testing.T) {
	stack := newHelloStack(t)

	if err := stack.client.SayHello(context.Background(), "Bryan", "Bonjour"); err != nil {
		t.Fatalf("SayHello failed: %v", err)
	}
	if got := stack.out.String(); got != "Bonjour, Bryan!\n" {
		t.Errorf("Expected greeting from server, got %q", got)
	}

	clientSpans := stack.clientSpans.WaitForSpans(3, time.Second)
	serverSpans := stack.serverSpans.WaitForSpans(1, time.Second)

	analyzer := NewTraceAnalyzer(clientSpans, serverSpans)
	if analyzer.CountSpans() != 4 {
		t.Fatalf("Expected 4 spans, got %d", analyzer.CountSpans())
	}
	if len(analyzer.TraceIDs()) != 1 {
		t.Errorf("Expected a single trace, got %d:\n%s", len(analyzer.TraceIDs()), PrintSpanTree(BuildSpanTree(clientSpans)))
	}
	if analyzer.CountTrees() != 1 {
		t.Errorf("Expected one root, got %d", analyzer.CountTrees())
	}
	if err := analyzer.VerifyChain(hello.SayHelloOperation, hello.FormatStringOperation, hello.FormatOperation); err != nil {
		t.Error(err)
	}
	if err := analyzer.VerifyChain(hello.SayHelloOperation, hello.PrintHelloOperation); err != nil {
		t.Error(err)
	}

	root := stack.clientSpans.AssertSpanNamed(hello.SayHelloOperation)
	NewSpanMatcher(t, root).
		IsRoot().
		HasTag(hello.HelloToTag, "Bryan").
		HasBaggage(hello.GreetingBaggageKey, "Bonjour")

	server := stack.serverSpans.AssertSpanNamed(hello.FormatOperation)
	NewSpanMatcher(t, server).
		HasTag(jaegerz.TagSpanKind, jaegerz.SpanKindServer).
		HasTag(jaegerz.TagComponent, jaegerz.ComponentName).
		HasTag(jaegerz.TagHTTPStatus, int64(http.StatusOK)).
		HasBaggage(hello.GreetingBaggageKey, "Bonjour")

	if server.Process == nil || server.Process.Service != "hello-server" {
		t.Errorf("Server span reported under wrong process: %+v", server.Process)
	}
}

// TestHelloDefaultGreeting checks the server falls back when no baggage
// arrives.
func TestHelloDefaultGreeting(t *testing.T) {
	stack := newHelloStack(t)

	if err := stack.client.SayHello(context.Background(), "Bryan", ""); err != nil {
		t.Fatalf("SayHello failed: %v", err)
	}
	if got := stack.out.String(); got != "Hello, Bryan!\n" {
		t.Errorf("Expected default greeting, got %q", got)
	}
}

// TestHelloUnsampledTrace checks the sampling decision travels with the
// context so neither side reports.
func TestHelloUnsampledTrace(t *testing.T) {
	stack := newHelloStack(t, jaegerz.WithSampler(jaegerz.NewConstSampler(false)))

	if err := stack.client.SayHello(context.Background(), "Bryan", "Hi"); err != nil {
		t.Fatalf("SayHello failed: %v", err)
	}

	// Baggage still flows on unsampled traces.
	if got := stack.out.String(); got != "Hi, Bryan!\n" {
		t.Errorf("Expected baggage greeting, got %q", got)
	}

	time.Sleep(20 * time.Millisecond)
	stack.clientSpans.AssertSpanCount(0)
	stack.serverSpans.AssertSpanCount(0)
}

// TestHelloServerDown checks the client surfaces the failure and marks
// its spans.
func TestHelloServerDown(t *testing.T) {
	stack := newHelloStack(t)
	stack.server.Close()

	err := stack.client.SayHello(context.Background(), "Bryan", "Bonjour")
	if err == nil {
		t.Fatal("Expected error when the server is down")
	}

	stack.clientSpans.AssertSpanCount(2)
	NewSpanMatcher(t, stack.clientSpans.AssertSpanNamed(hello.FormatStringOperation)).
		HasTag(jaegerz.TagError, true)
	NewSpanMatcher(t, stack.clientSpans.AssertSpanNamed(hello.SayHelloOperation)).
		HasTag(jaegerz.TagError, true)
}

// TestHelloConcurrentClients checks that concurrent greetings stay in
// separate traces and each server span finds its own caller.
func TestHelloConcurrentClients(t *testing.T) {
	stack := newHelloStack(t)
	const clients = 20

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var out bytes.Buffer
			client := hello.NewClient(otbridge.New(stack.clientTracer), &out, hello.WithServerURL(stack.server.URL))
			helloTo := fmt.Sprintf("user-%d", idx)
			if err := client.SayHello(context.Background(), helloTo, fmt.Sprintf("Hi%d", idx)); err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("Hi%d, %s!\n", idx, helloTo); out.String() != want {
				errs <- fmt.Errorf("client %d: expected %q, got %q", idx, want, out.String())
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	clientSpans := stack.clientSpans.WaitForSpans(clients*3, 2*time.Second)
	serverSpans := stack.serverSpans.WaitForSpans(clients, 2*time.Second)

	analyzer := NewTraceAnalyzer(clientSpans, serverSpans)
	traces := analyzer.TraceIDs()
	if len(traces) != clients {
		t.Fatalf("Expected %d traces, got %d", clients, len(traces))
	}
	for id, count := range traces {
		if count != 4 {
			t.Errorf("Trace %s has %d spans, expected 4", id, count)
		}
	}

	for i := range serverSpans {
		caller, ok := analyzer.Span(serverSpans[i].ParentID())
		if !ok {
			t.Errorf("Server span %s has no caller in the client spans", serverSpans[i].SpanID())
			continue
		}
		AssertChildOf(t, &caller, &serverSpans[i])
		if caller.Name != hello.FormatStringOperation {
			t.Errorf("Server span parent is %s, expected %s", caller.Name, hello.FormatStringOperation)
		}
	}
}
