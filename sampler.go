package jaegerz

import (
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// Sampler decides whether a new trace is recorded. It is consulted only for
// root spans; children inherit the decision. The returned tags are attached
// to the root span.
type Sampler interface {
	IsSampled(id TraceID, operation Key) (bool, map[Tag]any)
}

// Sampler type names, as used in configuration.
const (
	SamplerTypeConst         = "const"
	SamplerTypeProbabilistic = "probabilistic"
	SamplerTypeRateLimiting  = "ratelimiting"
)

// NewSampler builds a sampler from its configured type and parameter.
func NewSampler(samplerType string, param float64) (Sampler, error) {
	switch samplerType {
	case SamplerTypeConst:
		return NewConstSampler(param != 0), nil
	case SamplerTypeProbabilistic:
		return NewProbabilisticSampler(param)
	case SamplerTypeRateLimiting:
		return NewRateLimitingSampler(param)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSamplerType, samplerType)
	}
}

// ConstSampler always returns the same decision.
type ConstSampler struct {
	tags     map[Tag]any
	decision bool
}

// NewConstSampler creates a sampler that always decides sample.
func NewConstSampler(sample bool) *ConstSampler {
	return &ConstSampler{
		decision: sample,
		tags: map[Tag]any{
			TagSamplerType:  SamplerTypeConst,
			TagSamplerParam: sample,
		},
	}
}

// IsSampled implements Sampler.
func (s *ConstSampler) IsSampled(TraceID, Key) (bool, map[Tag]any) {
	return s.decision, s.tags
}

// maxRandomNumber masks trace ids down to 63 bits so the boundary
// comparison stays in range.
const maxRandomNumber = ^(uint64(1) << 63)

// ProbabilisticSampler samples a fixed fraction of traces, decided from the
// trace id so every process reaches the same verdict.
type ProbabilisticSampler struct {
	tags     map[Tag]any
	boundary uint64
	rate     float64
}

// NewProbabilisticSampler creates a sampler for rate in [0, 1].
func NewProbabilisticSampler(samplingRate float64) (*ProbabilisticSampler, error) {
	if samplingRate < 0 || samplingRate > 1 || math.IsNaN(samplingRate) {
		return nil, fmt.Errorf("%w: sampling rate %v not in [0, 1]", ErrInvalidSamplerParam, samplingRate)
	}
	return &ProbabilisticSampler{
		rate:     samplingRate,
		boundary: uint64(float64(maxRandomNumber) * samplingRate),
		tags: map[Tag]any{
			TagSamplerType:  SamplerTypeProbabilistic,
			TagSamplerParam: samplingRate,
		},
	}, nil
}

// SamplingRate returns the configured rate.
func (s *ProbabilisticSampler) SamplingRate() float64 {
	return s.rate
}

// IsSampled implements Sampler.
func (s *ProbabilisticSampler) IsSampled(id TraceID, _ Key) (bool, map[Tag]any) {
	return s.boundary >= id.Low&maxRandomNumber, s.tags
}

// RateLimitingSampler samples at most a fixed number of traces per second.
type RateLimitingSampler struct {
	limiter *rate.Limiter
	tags    map[Tag]any
}

// NewRateLimitingSampler creates a sampler allowing maxTracesPerSecond.
func NewRateLimitingSampler(maxTracesPerSecond float64) (*RateLimitingSampler, error) {
	if maxTracesPerSecond < 0 || math.IsNaN(maxTracesPerSecond) {
		return nil, fmt.Errorf("%w: max traces per second %v is negative", ErrInvalidSamplerParam, maxTracesPerSecond)
	}
	burst := int(math.Max(1, math.Ceil(maxTracesPerSecond)))
	return &RateLimitingSampler{
		limiter: rate.NewLimiter(rate.Limit(maxTracesPerSecond), burst),
		tags: map[Tag]any{
			TagSamplerType:  SamplerTypeRateLimiting,
			TagSamplerParam: maxTracesPerSecond,
		},
	}, nil
}

// IsSampled implements Sampler.
func (s *RateLimitingSampler) IsSampled(TraceID, Key) (bool, map[Tag]any) {
	return s.limiter.Allow(), s.tags
}
