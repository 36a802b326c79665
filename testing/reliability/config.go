package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Reliability levels.
const (
	LevelBasic  = "basic"
	LevelStress = "stress"
)

// ReliabilityConfig holds configuration for reliability testing.
// Read from JAEGERZ_RELIABILITY_* environment variables.
type ReliabilityConfig struct {
	Level            string        `envconfig:"LEVEL"`
	Duration         time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines    int           `envconfig:"MAX_GOROUTINES" default:"100"`
	FailureThreshold float64       `envconfig:"FAILURE_THRESHOLD" default:"0.05"`
}

// getReliabilityConfig reads configuration from the environment. Bad
// values fail the test.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var config ReliabilityConfig
	if err := envconfig.Process("JAEGERZ_RELIABILITY", &config); err != nil {
		t.Fatalf("invalid reliability config: %v", err)
	}
	return config
}

// runLevel dispatches to the suite for the configured level, skipping when
// none is set.
func runLevel(t *testing.T, basic, stress map[string]func(*testing.T, ReliabilityConfig)) {
	config := getReliabilityConfig(t)

	var suite map[string]func(*testing.T, ReliabilityConfig)
	switch config.Level {
	case LevelBasic:
		suite = basic
	case LevelStress:
		suite = stress
	default:
		t.Skip("JAEGERZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}

	for name, fn := range suite {
		fn := fn
		t.Run(name, func(t *testing.T) { fn(t, config) })
	}
}
