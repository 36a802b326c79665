package hello

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"
)

// Span names used by the client.
const (
	SayHelloOperation     = "say-hello"
	FormatStringOperation = "format-string"
	PrintHelloOperation   = "print-hello"
)

// DefaultServerURL is where the format service listens by default.
const DefaultServerURL = "http://localhost:8081"

// Client says hello through the format service, tracing each step with an
// OpenTracing tracer.
type Client struct {
	tracer    opentracing.Tracer
	http      *resty.Client
	logger    *zap.Logger
	out       io.Writer
	serverURL string
	local     bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithServerURL points the client at a format service.
func WithServerURL(serverURL string) ClientOption {
	return func(c *Client) {
		c.serverURL = strings.TrimRight(serverURL, "/")
	}
}

// WithLocalFormat formats greetings in-process instead of calling the
// service. The format-string span is still recorded.
func WithLocalFormat() ClientOption {
	return func(c *Client) {
		c.local = true
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the resty client used for service calls.
func WithHTTPClient(client *resty.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient creates a client that prints greetings to out.
func NewClient(tracer opentracing.Tracer, out io.Writer, opts ...ClientOption) *Client {
	c := &Client{
		tracer: tracer,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("Accept", "text/plain"),
		logger:    zap.NewNop(),
		out:       out,
		serverURL: DefaultServerURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SayHello runs the traced greeting: a say-hello root span with the
// format-string and print-hello steps as children. A non-empty greeting
// travels to the service as baggage.
func (c *Client) SayHello(ctx context.Context, helloTo, greeting string) error {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, SayHelloOperation)
	defer span.Finish()

	span.SetTag(HelloToTag, helloTo)
	if greeting != "" {
		span.SetBaggageItem(GreetingBaggageKey, greeting)
	}

	var (
		helloStr string
		err      error
	)
	if c.local {
		helloStr = c.formatLocal(ctx, helloTo)
	} else {
		helloStr, err = c.formatRemote(ctx, helloTo)
	}
	if err != nil {
		ext.LogError(span, err)
		return err
	}

	c.printHello(ctx, helloStr)
	return nil
}

func (c *Client) formatLocal(ctx context.Context, helloTo string) string {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, FormatStringOperation)
	defer span.Finish()

	result := Format(span.BaggageItem(GreetingBaggageKey), helloTo)
	span.LogFields(
		log.String("event", "string.Format"),
		log.String("value", result),
	)
	return result
}

func (c *Client) formatRemote(ctx context.Context, helloTo string) (string, error) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, FormatStringOperation)
	defer span.Finish()

	endpoint := c.serverURL + "/api/format/" + url.PathEscape(helloTo)
	ext.SpanKindRPCClient.Set(span)
	ext.HTTPUrl.Set(span, endpoint)
	ext.HTTPMethod.Set(span, http.MethodGet)

	headers := http.Header{}
	if err := c.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers)); err != nil {
		c.logger.Warn("Failed to inject span context", zap.Error(err))
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaderMultiValues(headers).
		Get(endpoint)
	if err != nil {
		ext.LogError(span, err)
		return "", fmt.Errorf("failed to call format service: %w", err)
	}

	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode()))
	if resp.IsError() {
		err := fmt.Errorf("format service returned %s", resp.Status())
		ext.LogError(span, err)
		return "", err
	}

	result := resp.String()
	span.LogFields(
		log.String("event", "string.Format"),
		log.String("value", result),
	)
	return result, nil
}

func (c *Client) printHello(ctx context.Context, helloStr string) {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, c.tracer, PrintHelloOperation)
	defer span.Finish()

	fmt.Fprintln(c.out, helloStr)
	span.LogKV("event", "WriteLine")
	c.logger.Debug("Printed greeting", zap.String("value", helloStr))
}
