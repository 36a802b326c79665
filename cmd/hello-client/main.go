// Command hello-client says hello through the format service, tracing the
// whole exchange.
//
//	hello-client <helloTo> <greeting>
//	hello-client --local <helloTo> [greeting]
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/jaegerz/config"
	"github.com/zoobzio/jaegerz/internal/hello"
	"github.com/zoobzio/jaegerz/otbridge"
)

type settings struct {
	ServerURL    string `envconfig:"SERVER_URL" default:"http://localhost:8081"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	Development  bool   `envconfig:"DEVELOPMENT" default:"true"`
	TracerConfig string `envconfig:"TRACER_CONFIG"`
	LogSpans     bool   `envconfig:"LOG_SPANS" default:"true"`
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var (
		s     settings
		local bool
	)

	cmd := &cobra.Command{
		Use:   "hello-client <helloTo> <greeting>",
		Short: "Say hello through the traced format service",
		Args:  cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !local && len(args) != 2 {
				return fmt.Errorf("expecting two arguments, helloTo and greeting")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			helloTo := args[0]
			var greeting string
			if len(args) > 1 {
				greeting = args[1]
			}
			return sayHello(cmd, s, local, out, helloTo, greeting)
		},
	}

	if err := envconfig.Process("HELLO", &s); err != nil {
		cmd.RunE = func(*cobra.Command, []string) error {
			return fmt.Errorf("failed to load settings: %w", err)
		}
	}

	flags := cmd.Flags()
	flags.BoolVar(&local, "local", false, "format the greeting in-process instead of calling the server")
	flags.StringVar(&s.ServerURL, "server-url", s.ServerURL, "base URL of the format service")
	flags.StringVar(&s.LogLevel, "log-level", s.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&s.TracerConfig, "tracer-config", s.TracerConfig, "optional tracer YAML file")

	return cmd
}

func sayHello(cmd *cobra.Command, s settings, local bool, out io.Writer, helloTo, greeting string) error {
	logger, err := config.NewLogger(s.LogLevel, s.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(s.TracerConfig)
	if err != nil {
		return err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hello-world"
	}
	cfg.Reporter.LogSpans = cfg.Reporter.LogSpans || s.LogSpans

	tracer, err := cfg.NewTracer(logger)
	if err != nil {
		return err
	}
	defer tracer.Close()

	opts := []hello.ClientOption{
		hello.WithLogger(logger),
		hello.WithServerURL(s.ServerURL),
	}
	if local {
		opts = append(opts, hello.WithLocalFormat())
	}

	client := hello.NewClient(otbridge.New(tracer), out, opts...)
	if err := client.SayHello(cmd.Context(), helloTo, greeting); err != nil {
		logger.Error("Failed to say hello", zap.String("hello_to", helloTo), zap.Error(err))
		return err
	}
	return nil
}
