// Package hello holds the format service and its client. Together they form
// a two-hop trace: the client's root span, its outbound call, and the
// server span that joins the caller's trace.
package hello

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoobzio/jaegerz"
)

// Baggage and tag keys shared by client and server.
const (
	GreetingBaggageKey = "greeting"
	HelloToTag         = "hello-to"
	DefaultGreeting    = "Hello"
)

// FormatPath is the route served by the format endpoint.
const FormatPath = "/api/format/:helloTo"

// FormatOperation names the server span for a format request.
const FormatOperation = "format-controller"

// Format builds the greeting line.
func Format(greeting, helloTo string) string {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return fmt.Sprintf("%s, %s!", greeting, helloTo)
}

// NewRouter wires the format endpoint behind the tracing middleware. When
// gatherer is non-nil its metrics are served at /metrics.
func NewRouter(tracer *jaegerz.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/", TracingMiddleware(tracer, operationFor))
	api.GET(FormatPath, formatHandler(logger))

	return router
}

func operationFor(c *gin.Context) jaegerz.Key {
	if c.FullPath() == FormatPath {
		return FormatOperation
	}
	if c.FullPath() == "" {
		return c.Request.Method
	}
	return c.Request.Method + " " + c.FullPath()
}

// TracingMiddleware starts a server span per request. It joins the caller's
// trace when the request carries one.
func TracingMiddleware(tracer *jaegerz.Tracer, operation func(*gin.Context) jaegerz.Key) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, scope := tracer.StartServerSpan(
			c.Request.Context(),
			jaegerz.HTTPHeadersCarrier(c.Request.Header),
			operation(c),
		)
		defer scope.Close()

		span := scope.Span()
		span.SetTag(jaegerz.TagHTTPMethod, c.Request.Method)
		span.SetTag(jaegerz.TagHTTPURL, c.Request.URL.String())

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetIntTag(jaegerz.TagHTTPStatus, int64(status))
		if status >= http.StatusInternalServerError {
			span.SetBoolTag(jaegerz.TagError, true)
		}
	}
}

func formatHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		helloTo := c.Param("helloTo")
		span := jaegerz.SpanFromContext(c.Request.Context())

		var greeting string
		if span != nil {
			greeting, _ = span.BaggageItem(GreetingBaggageKey)
		}
		result := Format(greeting, helloTo)

		if span != nil {
			span.LogKV(jaegerz.LogFieldEvent, "string-format", jaegerz.LogFieldValue, result)
			logger.Debug("Formatted greeting",
				zap.String("trace_id", span.TraceID().String()),
				zap.String("result", result),
			)
		}

		c.String(http.StatusOK, result)
	}
}
