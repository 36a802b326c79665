// Command hello-server serves GET /api/format/{helloTo}, joining the
// caller's trace and reading the greeting from baggage.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/jaegerz"
	"github.com/zoobzio/jaegerz/config"
	"github.com/zoobzio/jaegerz/internal/hello"
)

type settings struct {
	Addr            string        `envconfig:"ADDR" default:":8081"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	Development     bool          `envconfig:"DEVELOPMENT" default:"false"`
	TracerConfig    string        `envconfig:"TRACER_CONFIG"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func processSettings(s *settings) error {
	return envconfig.Process("HELLO", s)
}

func main() {
	var s settings
	if err := processSettings(&s); err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(s.LogLevel, s.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if !s.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(s.TracerConfig)
	if err != nil {
		logger.Fatal("Failed to load tracer config", zap.Error(err))
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hello-server"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	tracer, err := cfg.NewTracer(logger, jaegerz.WithMetrics(cfg.NewMetrics(registry)))
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer tracer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, tracer, logger, registry); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, s settings, tracer *jaegerz.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           hello.NewRouter(tracer, logger, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", s.Addr), zap.String("service", tracer.ServiceName()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
