package jaegerz

import (
	"errors"
	"math"
	"testing"
)

func TestConstSampler(t *testing.T) {
	for _, decision := range []bool{true, false} {
		s := NewConstSampler(decision)
		sampled, tags := s.IsSampled(TraceID{Low: 1}, "op")
		if sampled != decision {
			t.Errorf("ConstSampler(%v) sampled = %v", decision, sampled)
		}
		if tags[TagSamplerType] != SamplerTypeConst || tags[TagSamplerParam] != decision {
			t.Errorf("Unexpected sampler tags %v", tags)
		}
	}
}

func TestProbabilisticSampler(t *testing.T) {
	s, err := NewProbabilisticSampler(0.5)
	if err != nil {
		t.Fatalf("NewProbabilisticSampler failed: %v", err)
	}
	if s.SamplingRate() != 0.5 {
		t.Errorf("Expected rate 0.5, got %v", s.SamplingRate())
	}

	// The decision depends only on the low bits of the trace id.
	low := TraceID{Low: 1}
	high := TraceID{Low: maxRandomNumber}
	if sampled, _ := s.IsSampled(low, "op"); !sampled {
		t.Error("Expected small trace id to be sampled")
	}
	if sampled, _ := s.IsSampled(high, "op"); sampled {
		t.Error("Expected large trace id to be rejected")
	}
	if a, _ := s.IsSampled(TraceID{High: 99, Low: 1}, "other"); !a {
		t.Error("Expected high bits and operation to be ignored")
	}

	always, _ := NewProbabilisticSampler(1)
	never, _ := NewProbabilisticSampler(0)
	for _, id := range []uint64{1, 1 << 40, math.MaxUint64} {
		if sampled, _ := always.IsSampled(TraceID{Low: id}, "op"); !sampled {
			t.Errorf("Expected rate 1 to sample %x", id)
		}
		if sampled, _ := never.IsSampled(TraceID{Low: id}, "op"); sampled {
			t.Errorf("Expected rate 0 to reject %x", id)
		}
	}
}

func TestProbabilisticSamplerInvalidRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := NewProbabilisticSampler(rate); !errors.Is(err, ErrInvalidSamplerParam) {
			t.Errorf("Expected ErrInvalidSamplerParam for %v, got %v", rate, err)
		}
	}
}

func TestRateLimitingSampler(t *testing.T) {
	s, err := NewRateLimitingSampler(2)
	if err != nil {
		t.Fatalf("NewRateLimitingSampler failed: %v", err)
	}

	allowed := 0
	for i := 0; i < 10; i++ {
		if sampled, _ := s.IsSampled(TraceID{Low: uint64(i + 1)}, "op"); sampled {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("Expected burst of 2 sampled traces, got %d", allowed)
	}

	if _, err := NewRateLimitingSampler(-1); !errors.Is(err, ErrInvalidSamplerParam) {
		t.Errorf("Expected ErrInvalidSamplerParam, got %v", err)
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		samplerType string
		param       float64
		wantErr     error
	}{
		{SamplerTypeConst, 1, nil},
		{SamplerTypeConst, 0, nil},
		{SamplerTypeProbabilistic, 0.25, nil},
		{SamplerTypeProbabilistic, 2, ErrInvalidSamplerParam},
		{SamplerTypeRateLimiting, 10, nil},
		{"remote", 1, ErrUnknownSamplerType},
	}
	for _, tt := range tests {
		s, err := NewSampler(tt.samplerType, tt.param)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSampler(%s, %v): expected %v, got %v", tt.samplerType, tt.param, tt.wantErr, err)
			}
			continue
		}
		if err != nil || s == nil {
			t.Errorf("NewSampler(%s, %v) failed: %v", tt.samplerType, tt.param, err)
		}
	}

	s, _ := NewSampler(SamplerTypeConst, 0)
	if sampled, _ := s.IsSampled(TraceID{Low: 1}, "op"); sampled {
		t.Error("Expected const sampler with param 0 to reject")
	}
}
