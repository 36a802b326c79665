package jaegerz

import "errors"

var (
	// ErrInvalidSpanContext is returned when injecting a context without valid ids.
	ErrInvalidSpanContext = errors.New("jaegerz: invalid span context")
	// ErrUnsupportedFormat is returned for a format with no registered propagator.
	ErrUnsupportedFormat = errors.New("jaegerz: unsupported propagation format")
	// ErrInvalidCarrier is returned when the carrier does not match the format.
	ErrInvalidCarrier = errors.New("jaegerz: invalid carrier")
	// ErrUnknownSamplerType is returned by NewSampler for unrecognized types.
	ErrUnknownSamplerType = errors.New("jaegerz: unknown sampler type")
	// ErrInvalidSamplerParam is returned when a sampler parameter is out of range.
	ErrInvalidSamplerParam = errors.New("jaegerz: invalid sampler param")
)
