// Package config builds a jaegerz Tracer from JAEGER_* environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zoobzio/jaegerz"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "JAEGER"

// ErrServiceNameRequired is returned when no service name is configured.
var ErrServiceNameRequired = errors.New("config: service name is required")

// Configuration holds tracer settings.
type Configuration struct {
	ServiceName   string                `envconfig:"SERVICE_NAME" yaml:"serviceName"`
	Disabled      bool                  `envconfig:"DISABLED" yaml:"disabled"`
	TraceID128Bit bool                  `envconfig:"TRACEID_128BIT" default:"true" yaml:"traceid_128bit"`
	Tags          map[string]string     `envconfig:"TAGS" yaml:"tags"`
	Sampler       SamplerConfig         `envconfig:"SAMPLER" yaml:"sampler"`
	Reporter      ReporterConfig        `envconfig:"REPORTER" yaml:"reporter"`
	Metrics       MetricsConfig         `envconfig:"METRICS" yaml:"metrics"`
	Headers       jaegerz.HeadersConfig `ignored:"true" yaml:"headers"`
}

// SamplerConfig selects the root sampling policy.
type SamplerConfig struct {
	Type  string  `envconfig:"TYPE" default:"const" yaml:"type"`
	Param float64 `envconfig:"PARAM" default:"1" yaml:"param"`
}

// ReporterConfig controls what happens to finished spans.
type ReporterConfig struct {
	LogSpans  bool `envconfig:"LOG_SPANS" yaml:"logSpans"`
	Workers   int  `envconfig:"WORKERS" default:"0" yaml:"workers"`
	QueueSize int  `envconfig:"QUEUE_SIZE" default:"100" yaml:"queueSize"`
}

// MetricsConfig names the tracer's metrics.
type MetricsConfig struct {
	Namespace string `envconfig:"NAMESPACE" default:"jaegerz_tracer" yaml:"namespace"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (*Configuration, error) {
	var cfg Configuration
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Load reads the environment and then overlays the YAML file at path.
// Keys present in the file win. An empty path is the same as FromEnv.
func Load(path string) (*Configuration, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings without building anything.
func (c *Configuration) Validate() error {
	if c.ServiceName == "" {
		return ErrServiceNameRequired
	}
	if _, err := c.sampler(); err != nil {
		return err
	}
	if c.Reporter.Workers < 0 {
		return fmt.Errorf("config: reporter workers %d is negative", c.Reporter.Workers)
	}
	if c.Reporter.Workers > 0 && c.Reporter.QueueSize <= 0 {
		return fmt.Errorf("config: reporter queue size %d must be positive", c.Reporter.QueueSize)
	}
	return nil
}

// NewMetrics creates tracer metrics under the configured namespace.
func (c *Configuration) NewMetrics(reg prometheus.Registerer) *jaegerz.Metrics {
	return jaegerz.NewMetrics(reg, c.Metrics.Namespace)
}

// NewTracer validates the configuration and builds a tracer. Options are
// applied after the configured ones and so take precedence.
func (c *Configuration) NewTracer(logger *zap.Logger, opts ...jaegerz.Option) (*jaegerz.Tracer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sampler, err := c.sampler()
	if err != nil {
		return nil, err
	}

	var reporter jaegerz.Reporter = jaegerz.NewNullReporter()
	if c.Reporter.LogSpans {
		reporter = jaegerz.NewLoggingReporter(logger)
	}

	options := []jaegerz.Option{
		jaegerz.WithSampler(sampler),
		jaegerz.WithReporter(reporter),
		jaegerz.WithLogger(logger),
		jaegerz.WithMetrics(c.NewMetrics(nil)),
	}
	if !c.TraceID128Bit {
		options = append(options, jaegerz.With64BitTraceIDs())
	}
	if c.Headers != (jaegerz.HeadersConfig{}) {
		options = append(options, jaegerz.WithHeaders(c.Headers))
	}
	for k, v := range c.Tags {
		options = append(options, jaegerz.WithTag(k, v))
	}

	tracer := jaegerz.New(c.ServiceName, append(options, opts...)...)

	if c.Reporter.Workers > 0 {
		if err := tracer.EnableWorkerPool(c.Reporter.Workers, c.Reporter.QueueSize); err != nil {
			tracer.Close()
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	logger.Debug("Tracer initialized",
		zap.String("service", c.ServiceName),
		zap.String("sampler_type", c.Sampler.Type),
		zap.Float64("sampler_param", c.Sampler.Param),
		zap.Bool("disabled", c.Disabled),
		zap.Bool("log_spans", c.Reporter.LogSpans),
	)

	return tracer, nil
}

func (c *Configuration) sampler() (jaegerz.Sampler, error) {
	if c.Disabled {
		return jaegerz.NewConstSampler(false), nil
	}
	sampler, err := jaegerz.NewSampler(c.Sampler.Type, c.Sampler.Param)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return sampler, nil
}
